package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/couchcryptid/monitoring-gap-etl/internal/domain"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func headerMap(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func testReport() domain.RunReport {
	day := time.Date(2020, 1, 28, 0, 0, 0, 0, time.UTC)
	return domain.RunReport{
		RunID:      "run-42",
		FinishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Sources: []domain.SourceReport{
			{
				Source: "castnet",
				Sites: []domain.MissingRecord{
					{SiteID: "BEL116", RangeStart: day, RangeEnd: day, MissingDates: []time.Time{day}},
					{SiteID: "BWR139", RangeStart: day, RangeEnd: day, MissingDates: []time.Time{day}},
				},
				Correlations: []domain.CorrelationRow{{Date: day, SiteCount: 2, SiteIDs: []string{"BEL116", "BWR139"}}},
				Clusters:     []domain.ClusterRow{{Date: day, SiteIDs: []string{"BEL116", "BWR139"}}},
				Stats:        domain.ParseStats{RowsRead: 10},
			},
			{Source: "nadp", Error: "missing column", Err: domain.ErrSchema},
		},
	}
}

func TestBuildMessages(t *testing.T) {
	msgs, err := buildMessages(testReport())
	require.NoError(t, err)

	// castnet: summary + 2 sites + 1 correlation + 1 cluster; nadp: summary.
	require.Len(t, msgs, 6)

	kinds := make([]string, len(msgs))
	for i, m := range msgs {
		kinds[i] = headerMap(m)["kind"]
	}
	assert.Equal(t, []string{KindSource, KindSite, KindSite, KindCorrelation, KindCluster, KindSource}, kinds)

	for _, m := range msgs {
		h := headerMap(m)
		assert.Equal(t, "run-42", h["run_id"])
		assert.Equal(t, "2024-05-01T12:00:00Z", h["generated_at"])
		assert.Equal(t, string(m.Key), h["source"], "rows are keyed by source")
	}

	site := headerMap(msgs[1])
	assert.Equal(t, "BEL116", site["row_id"])
	assert.JSONEq(t, `{
		"site_id": "BEL116",
		"range_start": "2020-01-28T00:00:00Z",
		"range_end": "2020-01-28T00:00:00Z",
		"missing_dates": ["2020-01-28T00:00:00Z"]
	}`, string(msgs[1].Value))

	assert.Equal(t, "2020-01-28", headerMap(msgs[3])["row_id"])

	var failed sourceSummary
	require.NoError(t, json.Unmarshal(msgs[5].Value, &failed))
	assert.Equal(t, "nadp", failed.Source)
	assert.Equal(t, "missing column", failed.Error)
	assert.Zero(t, failed.Sites)
}

func TestBuildMessages_Empty(t *testing.T) {
	msgs, err := buildMessages(domain.RunReport{RunID: "run-0"})
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSerializeToMessage(t *testing.T) {
	report := domain.RunReport{RunID: "run-1", FinishedAt: time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)}
	row := domain.CorrelationRow{Date: time.Date(2020, 1, 28, 0, 0, 0, 0, time.UTC), SiteCount: 2, SiteIDs: []string{"A", "B"}}

	msg, err := serializeToMessage(report, "castnet", KindCorrelation, "2020-01-28", row)
	require.NoError(t, err)

	assert.Equal(t, []byte("castnet"), msg.Key)
	assert.Contains(t, string(msg.Value), `"site_count":2`)
	require.Len(t, msg.Headers, 5)
	assert.Equal(t, "source", msg.Headers[0].Key)
	assert.Equal(t, "kind", msg.Headers[1].Key)
	assert.Equal(t, []byte(KindCorrelation), msg.Headers[1].Value)
	assert.Equal(t, []byte(report.FinishedAt.Format(time.RFC3339)), msg.Headers[4].Value)
}

func TestSerializeToMessage_Unmarshalable(t *testing.T) {
	_, err := serializeToMessage(domain.RunReport{}, "castnet", KindSite, "X", make(chan int))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serialize castnet site row X")
}
