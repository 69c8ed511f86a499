package broker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	env, err := decodeEnvelope([]byte(`{"action":"TransactionEvent","payload":{"eventType":"Started"}}`))
	require.NoError(t, err)
	assert.Equal(t, "TransactionEvent", env.Action)
	assert.JSONEq(t, `{"eventType":"Started"}`, string(env.Payload))
}

func TestDecodeEnvelopeRejectsMissingAction(t *testing.T) {
	_, err := decodeEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err)

	_, err = decodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}

func TestHeaderString(t *testing.T) {
	headers := amqp.Table{"stationId": "ST-1", "retries": int32(2)}
	assert.Equal(t, "ST-1", headerString(headers, "stationId"))
	assert.Equal(t, "", headerString(headers, "retries"))
	assert.Equal(t, "", headerString(nil, "stationId"))
}
