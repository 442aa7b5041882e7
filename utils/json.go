package utils

import (
	"encoding/json"
	"os"

	"github.com/AliToori/TradeDeskBot/models"
)

// WriteJSON writes every checkout attempt of every worker into a single flat
// JSON array, including attempts of workers that halted with an error.
// Returns the number of attempts written.
func WriteJSON(filename string, results []models.WorkerResult) (int, error) {
	all := make([]models.CheckoutAttempt, 0)
	for _, r := range results {
		all = append(all, r.Attempts...)
	}

	f, err := os.Create(filename)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(all); err != nil {
		return 0, err
	}

	return len(all), nil
}
