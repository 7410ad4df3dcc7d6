package utils_test

import (
	"testing"
	"time"

	"github.com/marianozunino/transferhelper/internal/utils"
	"github.com/stretchr/testify/assert"
)

func TestFormatFileSize(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{1536 * 1024 * 1024, "1.5 GB"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.FormatFileSize(tt.size))
		})
	}
}

func TestFormatDaysRemaining(t *testing.T) {
	tests := []struct {
		name string
		days int
		want string
	}{
		{"negative", -3, "expired"},
		{"zero", 0, "expired"},
		{"one day", 1, "1 day"},
		{"several days", 5, "5 days"},
		{"one week", 7, "1 week"},
		{"one week and change", 13, "1 week"},
		{"two weeks", 14, "2 weeks"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, utils.FormatDaysRemaining(tt.days))
		})
	}
}

func TestFormatDate(t *testing.T) {
	assert.Equal(t, "Never", utils.FormatDate(time.Time{}))

	ts := time.Date(2024, 3, 5, 15, 4, 0, 0, time.Local)
	assert.Equal(t, "Mar 5, 2024 at 3:04 PM", utils.FormatDate(ts))
}

func TestProgressBar(t *testing.T) {
	assert.Equal(t, "░░░░", utils.ProgressBar(0, 4))
	assert.Equal(t, "██░░", utils.ProgressBar(0.5, 4))
	assert.Equal(t, "████", utils.ProgressBar(1, 4))
	assert.Equal(t, "████", utils.ProgressBar(3, 4))
	assert.Equal(t, "░░░░", utils.ProgressBar(-1, 4))
}
