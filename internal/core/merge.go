package core

import "tapeview/pkg/domain"

const (
	tablePeaks   = "peaks"
	tableRegions = "regions"
)

// SelectStrongestPeaks drops ladder wells and keeps only the first peak of
// each remaining well, preserving input order.
func SelectStrongestPeaks(rows []domain.PeakRow) []domain.PeakRow {
	out := make([]domain.PeakRow, 0, len(rows))
	for _, row := range rows {
		if row.IsLadder() || !row.IsStrongest() {
			continue
		}
		out = append(out, row)
	}
	return out
}

// Merge outer-joins strongest-peak rows with region rows on (dataset, well).
// Output order is the peak order followed by region rows that matched no
// peak, in region order. A key repeated within either input fails with
// domain.ErrDuplicateKey.
func Merge(peaks []domain.PeakRow, regions []domain.RegionRow) (*Baseline, error) {
	regionByKey := make(map[domain.Key]int, len(regions))
	for i, region := range regions {
		key := region.Key()
		if _, dup := regionByKey[key]; dup {
			return nil, domain.ErrDuplicateKey{Table: tableRegions, Key: key}
		}
		regionByKey[key] = i
	}

	rows := make([]domain.Record, 0, len(peaks)+len(regions))
	matched := make([]bool, len(regions))
	seenPeaks := make(map[domain.Key]struct{}, len(peaks))
	for _, peak := range peaks {
		key := peak.Key()
		if _, dup := seenPeaks[key]; dup {
			return nil, domain.ErrDuplicateKey{Table: tablePeaks, Key: key}
		}
		seenPeaks[key] = struct{}{}
		record := domain.Record{
			DatasetID:               peak.DatasetID,
			WellID:                  peak.WellID,
			PeakMolarity:            peak.PeakMolarity,
			IntegratedAreaPct:       peak.IntegratedAreaPct,
			Size:                    peak.Size,
			CalibratedConcentration: peak.CalibratedConcentration,
		}
		if i, ok := regionByKey[key]; ok {
			record.AvgRegionSize = regions[i].AvgRegionSize
			matched[i] = true
		}
		rows = append(rows, record)
	}
	for i, region := range regions {
		if matched[i] {
			continue
		}
		rows = append(rows, domain.Record{
			DatasetID:     region.DatasetID,
			WellID:        region.WellID,
			AvgRegionSize: region.AvgRegionSize,
		})
	}
	return newBaseline(rows), nil
}
