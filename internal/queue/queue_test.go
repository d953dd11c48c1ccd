package queue

import (
	"testing"

	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"
)

func TestParseJob(t *testing.T) {
	job, err := ParseJob(amqp.Delivery{Body: []byte(`{"campaign_id":"c1"}`)})
	require.NoError(t, err)
	require.Equal(t, "c1", job.CampaignID)

	_, err = ParseJob(amqp.Delivery{Body: []byte("not json")})
	require.Error(t, err)
}

func TestRetryCount(t *testing.T) {
	require.Equal(t, int32(0), retryCount(amqp.Delivery{}))
	require.Equal(t, int32(0), retryCount(amqp.Delivery{Headers: amqp.Table{}}))
	require.Equal(t, int32(2), retryCount(amqp.Delivery{
		Headers: amqp.Table{"x-retry-count": int32(2)},
	}))
	// A malformed header counts as zero rather than dropping the job.
	require.Equal(t, int32(0), retryCount(amqp.Delivery{
		Headers: amqp.Table{"x-retry-count": "2"},
	}))
}
