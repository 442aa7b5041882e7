package utils

import (
	"sort"

	"github.com/AliToori/TradeDeskBot/models"
)

type WorkerCount struct {
	WorkerID  int
	Claimed   int
	Completed int
}

type SummaryStats struct {
	ItemsClaimed   int
	ItemsAbandoned int
	TotalAttempts  int
	Completed      int
	Cancelled      int
	Abandoned      int
	FailedWorkers  int

	// Prices are over completed attempts only.
	TotalSpend   float64
	AveragePrice float64
	MinimumPrice float64
	MaximumPrice float64

	AttemptsPerWorker []WorkerCount
	LatestPurchases   []models.CheckoutAttempt
}

func BuildSummaryStats(results []models.WorkerResult) SummaryStats {
	var stats SummaryStats
	purchases := make([]models.CheckoutAttempt, 0)
	perWorker := make([]WorkerCount, 0, len(results))

	for _, result := range results {
		if result.Err != nil {
			stats.FailedWorkers++
		}
		stats.ItemsClaimed += result.ItemsClaimed
		stats.ItemsAbandoned += result.ItemsAbandoned
		stats.TotalAttempts += len(result.Attempts)

		count := WorkerCount{WorkerID: result.WorkerID, Claimed: result.ItemsClaimed}
		for _, a := range result.Attempts {
			switch a.Stage {
			case models.StageCompleted:
				stats.Completed++
				count.Completed++
				if a.VerifiedPrice != nil {
					purchases = append(purchases, a)
				}
			case models.StageCancelled:
				stats.Cancelled++
			case models.StageAbandoned:
				stats.Abandoned++
			}
		}
		perWorker = append(perWorker, count)
	}

	sort.Slice(perWorker, func(i, j int) bool {
		if perWorker[i].Completed == perWorker[j].Completed {
			return perWorker[i].WorkerID < perWorker[j].WorkerID
		}
		return perWorker[i].Completed > perWorker[j].Completed
	})
	stats.AttemptsPerWorker = perWorker

	if len(purchases) == 0 {
		return stats
	}

	minPrice := *purchases[0].VerifiedPrice
	maxPrice := minPrice
	for _, a := range purchases {
		price := *a.VerifiedPrice
		stats.TotalSpend += price
		if price < minPrice {
			minPrice = price
		}
		if price > maxPrice {
			maxPrice = price
		}
	}
	stats.AveragePrice = stats.TotalSpend / float64(len(purchases))
	stats.MinimumPrice = minPrice
	stats.MaximumPrice = maxPrice

	sort.Slice(purchases, func(i, j int) bool {
		return purchases[i].FinishedAt.After(purchases[j].FinishedAt)
	})
	if len(purchases) > 5 {
		purchases = purchases[:5]
	}
	stats.LatestPurchases = purchases

	return stats
}
