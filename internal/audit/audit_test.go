package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/chat-core/pkg/log"
)

func Test_LogWithDetail_writes_audit_entry(t *testing.T) {
	var buf bytes.Buffer
	ctx := log.WithLogger(context.Background(), zerolog.New(&buf))

	LogWithDetail(ctx, ActionSubscribe, 42, "/room/3", "subscribed")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, log.LogTypeAudit, entry[log.FieldLogType])
	assert.Equal(t, ActionSubscribe, entry[FieldAction])
	assert.Equal(t, float64(42), entry[log.FieldMemberID])
	assert.Equal(t, "/room/3", entry[FieldDetail])
	assert.Equal(t, "subscribed", entry["message"])
}
