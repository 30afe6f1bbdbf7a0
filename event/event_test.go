package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgACKSendsNilOnResp(t *testing.T) {
	resp := NewResp()
	msg := Msg{Kind: KindAbort, Resp: resp}

	go msg.ACK()
	err := resp.Wait()
	require.NoError(t, err)
}

func TestMsgNACKSendsErrorOnResp(t *testing.T) {
	resp := NewResp()
	msg := Msg{Kind: KindPause, Resp: resp}

	go msg.NACK()
	err := resp.Wait()
	assert.Error(t, err)
}

func TestMsgACKNoopWithoutResp(t *testing.T) {
	msg := Msg{Kind: KindResume}
	msg.ACK()
	msg.NACK()
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "abort", KindAbort.String())
	assert.Equal(t, "pause", KindPause.String())
	assert.Equal(t, "resume", KindResume.String())
	assert.Equal(t, "nil", KindNil.String())
}
