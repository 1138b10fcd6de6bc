package server

import "time"

func dayToDateString(dayTS int64) string {
	return time.Unix(dayTS, 0).UTC().Format("2006-01-02")
}

func parseDateTS(s string) (int64, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return 0, err
	}
	return t.UTC().Unix(), nil
}
