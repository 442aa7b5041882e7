package models

// WorkerResult is sent back from each worker goroutine when it exits.
type WorkerResult struct {
	WorkerID       int
	ItemsClaimed   int
	ItemsAbandoned int // malformed descriptors and hunts that timed out without a match
	Attempts       []CheckoutAttempt
	Err            error
}
