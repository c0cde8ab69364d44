package services

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/talentflow/ats-backend/models"
)

func sampleExport() *PublicApplicationsExport {
	median := 3.0
	return &PublicApplicationsExport{
		Daily: &models.DailyStatusReport{
			Items: []models.DailyStatusRow{
				{Day: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), Status: "received", Total: 7},
			},
			Totals: []models.StatusTotal{{Status: "received", Total: 7}},
		},
		Conversion: &models.ConversionReport{
			Summary: models.ConversionSummary{TotalLogs: 7, Matched: 5, Interviews: 2, Offers: 1, Hires: 1},
			Status:  []models.CurrentStatusCount{{Status: strPtr("Entrevista"), Total: 2}},
		},
		Response: &models.ResponseTimeReport{Samples: 2, MedianHours: &median},
		Sources: &models.SourcesReport{
			Channels: models.ChannelBreakdown{
				Breakdown: []models.ChannelDailyRow{{Day: "2024-03-02", Channel: "linkedin", FunnelCounts: models.FunnelCounts{TotalLogs: 7}}},
			},
			Platforms: models.PlatformBreakdown{
				Breakdown: []models.PlatformDailyRow{{Day: "2024-03-02", Platform: models.PlatformMobile, Total: 7}},
			},
		},
	}
}

func TestGeneratePublicApplicationsWorkbook(t *testing.T) {
	data, err := GeneratePublicApplicationsWorkbook(sampleExport())
	require.NoError(t, err)
	require.NotEmpty(t, data)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetConversion, sheetChannels, sheetPlatforms}, f.GetSheetList())

	summary, err := f.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Dia", "Estado", "Total"}, summary[0])
	assert.Equal(t, []string{"2024-03-02", "received", "7"}, summary[1])

	value, err := f.GetCellValue(sheetConversion, "B3")
	require.NoError(t, err)
	assert.Equal(t, "5", value)

	avg, err := f.GetCellValue(sheetConversion, "B8")
	require.NoError(t, err)
	assert.Equal(t, "", avg)

	median, err := f.GetCellValue(sheetConversion, "B9")
	require.NoError(t, err)
	assert.Equal(t, "3", median)

	channels, err := f.GetRows(sheetChannels)
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "linkedin", channels[1][1])

	platforms, err := f.GetRows(sheetPlatforms)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-02", "mobile", "7"}, platforms[1])
}

func TestGeneratePublicApplicationsWorkbook_EmptyReports(t *testing.T) {
	data, err := GeneratePublicApplicationsWorkbook(&PublicApplicationsExport{
		Daily:      &models.DailyStatusReport{},
		Conversion: &models.ConversionReport{},
		Response:   &models.ResponseTimeReport{},
		Sources:    &models.SourcesReport{},
	})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetPlatforms)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
