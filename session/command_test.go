package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/testutils"
	"github.com/srg/blesense/session"
)

var (
	cmdWrite  = device.Characteristic{UUID: "ff01", Properties: device.PropWrite}
	cmdNotify = device.Characteristic{UUID: "ff02", Properties: device.PropNotify}
)

// connectedLink returns a FakeLink connected through a FakeAdapter.
func connectedLink(t *testing.T) *testutils.FakeLink {
	adapter := testutils.NewFakeAdapter(device.StatePoweredOn)
	link := testutils.NewFakeLink(sensorAddr).WithService("ff00", cmdWrite, cmdNotify)
	adapter.AddLink(link)
	_, err := adapter.Dial(context.Background(), sensorAddr)
	require.NoError(t, err)
	return link
}

func TestCommandChannel_Send(t *testing.T) {
	link := connectedLink(t)
	link.OnWrite(func(l *testutils.FakeLink, w testutils.Write) {
		l.Notify("ff02", []byte{0x42, 0xaa}, false) // read echo
		l.Notify("ff02", []byte{0x07, 0xbb}, true)  // unrelated response
		l.Notify("ff02", nil, true)
		l.Notify("ff02", []byte{0x42, 0xcc}, true)
		l.Notify("ff02", []byte{0x42, 0xdd}, true)
	})
	ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, testutils.NewQuietLogger())

	resp, err := ch.Send(context.Background(), []byte{0x10, 0x01}, 0x42)

	require.NoError(t, err)
	assert.Equal(t, []byte{0x42, 0xcc}, resp, "the first pushed notification with the expected code MUST win")
	assert.Equal(t, []testutils.Write{{Characteristic: "ff01", Data: []byte{0x10, 0x01}}}, link.Writes())
	assert.Equal(t, 0, link.NotificationListeners("ff02"))
}

func TestCommandChannel_Failures(t *testing.T) {
	writeErr := errors.New("att: write not permitted")

	t.Run("write failure returns immediately", func(t *testing.T) {
		link := connectedLink(t).FailWrites(writeErr)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)

		start := time.Now()
		resp, err := ch.Send(context.Background(), []byte{0x01}, 0x01)
		link.Notify("ff02", []byte{0x01}, true) // late response with the expected code

		var werr *device.WriteError
		require.ErrorAs(t, err, &werr, "a late matching response MUST NOT turn a failed write into success")
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, writeErr)
		assert.Equal(t, "ff01", werr.Characteristic)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 0, link.NotificationListeners("ff02"), "listener MUST be released on write failure")
	})

	t.Run("no response until deadline", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
		defer cancel()

		_, err := ch.Send(ctx, []byte{0x01}, 0x01)

		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Equal(t, 0, link.NotificationListeners("ff02"))
	})

	t.Run("cancelled context skips the write", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := ch.Send(ctx, []byte{0x01}, 0x01)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, link.Writes())
	})

	t.Run("empty payload is rejected", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)

		_, err := ch.Send(context.Background(), nil, 0x01)

		assert.Error(t, err)
		assert.Empty(t, link.Writes())
	})

	t.Run("one command at a time", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)

		var nested error
		link.OnWrite(func(l *testutils.FakeLink, w testutils.Write) {
			_, nested = ch.Send(context.Background(), []byte{0x02}, 0x02)
			l.Notify("ff02", []byte{0x01}, true)
		})

		_, err := ch.Send(context.Background(), []byte{0x01}, 0x01)
		require.NoError(t, err)
		assert.ErrorIs(t, nested, session.ErrCommandPending)

		link.RespondWith("ff01", "ff02", 0x09)
		_, err = ch.Send(context.Background(), []byte{0x03}, 0x09)
		assert.NoError(t, err, "the channel MUST accept a new command once the previous one resolved")
	})
}

func TestCommandChannel_Close(t *testing.T) {
	t.Run("fails the pending command with the cause", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)
		cause := &device.DisconnectedError{Address: sensorAddr}
		link.OnWrite(func(*testutils.FakeLink, testutils.Write) {
			ch.Close(cause)
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		start := time.Now()
		_, err := ch.Send(ctx, []byte{0x01}, 0x01)

		assert.ErrorIs(t, err, cause)
		assert.Less(t, time.Since(start), time.Second)
		assert.Equal(t, 0, link.NotificationListeners("ff02"))
	})

	t.Run("rejects commands after close without writing", func(t *testing.T) {
		link := connectedLink(t)
		ch := session.NewCommandChannel(link, cmdWrite, cmdNotify, nil)
		ch.Close(nil)
		ch.Close(errors.New("ignored"))

		_, err := ch.Send(context.Background(), []byte{0x01}, 0x01)

		assert.ErrorIs(t, err, device.ErrNotConnected, "a nil cause MUST mean not connected, only the first Close counts")
		assert.Empty(t, link.Writes())
	})
}
