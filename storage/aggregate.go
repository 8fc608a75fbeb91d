package storage

// ═══════════════════════════════════════════════════════════════════════════
// Aggregation helpers (used by the Excel export and /status)
// ═══════════════════════════════════════════════════════════════════════════

// DailySummary holds one UTC day's aggregate over all routes.
type DailySummary struct {
	Date              string
	Count             int
	Synthetic         int
	AvgScheduled      float64 // minutes
	AvgActual         float64 // minutes, over records with an actual duration
	ActualN           int
	AvgDepartureDelay float64 // minutes, over records with a departure delay
	AvgArrivalDelay   float64 // minutes, over records with an arrival delay
	MaxArrivalDelay   int
}

// ComputeDailySummaries groups records by UTC flight date, keeping the
// order in which days first appear.
func ComputeDailySummaries(records []FlightRecord, syntheticStatus string) []DailySummary {
	type accumulator struct {
		count, synthetic        int
		sumScheduled, sumActual float64
		actualN                 int
		sumDep, sumArr          float64
		depN, arrN              int
		maxArr                  int
	}

	byDate := make(map[string]*accumulator)
	var dateOrder []string

	for _, r := range records {
		day := r.FlightDate.UTC().Format("2006-01-02")

		acc, exists := byDate[day]
		if !exists {
			acc = &accumulator{}
			byDate[day] = acc
			dateOrder = append(dateOrder, day)
		}

		acc.count++
		if r.Status == syntheticStatus {
			acc.synthetic++
		}
		acc.sumScheduled += float64(r.ScheduledDuration)
		if r.ActualDuration != nil {
			acc.sumActual += float64(*r.ActualDuration)
			acc.actualN++
		}
		if r.DepartureDelay != nil {
			acc.sumDep += float64(*r.DepartureDelay)
			acc.depN++
		}
		if r.ArrivalDelay != nil {
			acc.sumArr += float64(*r.ArrivalDelay)
			acc.arrN++
			if *r.ArrivalDelay > acc.maxArr {
				acc.maxArr = *r.ArrivalDelay
			}
		}
	}

	summaries := make([]DailySummary, 0, len(dateOrder))
	for _, day := range dateOrder {
		acc := byDate[day]
		ds := DailySummary{
			Date:            day,
			Count:           acc.count,
			Synthetic:       acc.synthetic,
			AvgScheduled:    acc.sumScheduled / float64(acc.count),
			ActualN:         acc.actualN,
			MaxArrivalDelay: acc.maxArr,
		}
		if acc.actualN > 0 {
			ds.AvgActual = acc.sumActual / float64(acc.actualN)
		}
		if acc.depN > 0 {
			ds.AvgDepartureDelay = acc.sumDep / float64(acc.depN)
		}
		if acc.arrN > 0 {
			ds.AvgArrivalDelay = acc.sumArr / float64(acc.arrN)
		}
		summaries = append(summaries, ds)
	}

	return summaries
}
