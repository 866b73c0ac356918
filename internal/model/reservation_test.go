package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReservationTitleAndDescription(t *testing.T) {
	r := Reservation{
		Menu:   "セルフエステ",
		Store:  "新宿店",
		Start:  time.Date(2025, 6, 10, 19, 0, 0, 0, time.UTC),
		End:    time.Date(2025, 6, 10, 19, 50, 0, 0, time.UTC),
		Method: MethodFallback,
	}

	assert.Equal(t, "セルフエステ @ 新宿店", r.Title())
	assert.Equal(t, "chocoZAP 予約\nメニュー: セルフエステ\n店舗: 新宿店\nメール件名: 【予約確定】セルフエステ\n抽出方法: 代替パターン",
		r.Description("【予約確定】セルフエステ"))
	assert.Equal(t, r.Title(), r.Key().Title())
}

func TestExtractionMethodLabel(t *testing.T) {
	assert.Equal(t, "主要パターン", MethodPrimary.Label())
	assert.Equal(t, "代替パターン", MethodFallback.Label())
	assert.Equal(t, "other", ExtractionMethod("other").Label())
}

func TestEventKeyMatches(t *testing.T) {
	start := time.Date(2025, 6, 10, 19, 0, 0, 0, time.UTC)
	key := EventKey{Menu: "セルフエステ", Store: "新宿店", Start: start}

	tests := []struct {
		name  string
		title string
		start time.Time
		want  bool
	}{
		{name: "exact", title: "セルフエステ @ 新宿店", start: start, want: true},
		{name: "seconds ignored", title: "セルフエステ @ 新宿店", start: start.Add(42 * time.Second), want: true},
		{name: "other zone same instant", title: "セルフエステ @ 新宿店", start: start.In(time.FixedZone("JST", 9*60*60)), want: true},
		{name: "next minute", title: "セルフエステ @ 新宿店", start: start.Add(time.Minute), want: false},
		{name: "other store", title: "セルフエステ @ 渋谷店", start: start, want: false},
		{name: "title prefix", title: "セルフエステ @ 新宿", start: start, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, key.Matches(tt.title, tt.start))
		})
	}
}
