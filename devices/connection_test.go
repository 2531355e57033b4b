package devices_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"multi-serial-monitor/devices"
	"multi-serial-monitor/testutil"
	"multi-serial-monitor/types"
)

func lineConfig(location string) types.ConnectionConfig {
	return types.ConnectionConfig{
		Location: location,
		BaudRate: 9600,
		StopBits: 1,
		Encoding: types.EncodingUTF8,
	}
}

func openConnection(t *testing.T, tr *testutil.MockTransport, location string, opts ...devices.Option) *devices.Connection {
	t.Helper()
	conn := devices.NewConnection(tr, "dev", opts...)
	require.NoError(t, conn.Apply(lineConfig(location)))
	require.Equal(t, types.StateOpen, conn.State())
	return conn
}

func TestNewConnectionIsUnconfigured(t *testing.T) {
	conn := devices.NewConnection(testutil.NewMockTransport(), "device_0")

	assert.Equal(t, "device_0", conn.Name())
	assert.Equal(t, types.StateUnconfigured, conn.State())
	assert.Empty(t, conn.Location())
	assert.NotEqual(t, conn.ID(), devices.NewConnection(nil, "other").ID())

	data, err := conn.ReadAvailable()
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestApplyOpensWithLineSettings(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := devices.NewConnection(tr, "dev")

	cfg := types.ConnectionConfig{Location: "/dev/ttyUSB0", BaudRate: 115200, StopBits: 2, Encoding: types.EncodingASCII}
	require.NoError(t, conn.Apply(cfg))

	assert.Equal(t, []testutil.OpenCall{{Location: "/dev/ttyUSB0", BaudRate: 115200, StopBits: 2}}, tr.OpenCalls())
	assert.Equal(t, "/dev/ttyUSB0", conn.Location())
	assert.Equal(t, cfg, conn.Config())

	st := conn.Status()
	assert.Equal(t, types.StateOpen, st.State)
	assert.Empty(t, st.Detail)
	assert.Equal(t, conn.ID().String(), st.ID)
}

func TestApplyClosesPreviousPortFirst(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	first := tr.Port("/dev/ttyUSB0")

	require.NoError(t, conn.Apply(lineConfig("/dev/ttyUSB1")))

	assert.True(t, first.Closed())
	assert.False(t, tr.Port("/dev/ttyUSB1").Closed())
	assert.Equal(t, "/dev/ttyUSB1", conn.Location())
}

func TestApplyFailureAfterSuccessLeavesNoPort(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	first := tr.Port("/dev/ttyUSB0")

	tr.FailOpen("/nonexistent", errors.New("no such file or directory"))
	err := conn.Apply(lineConfig("/nonexistent"))

	var connErr *devices.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "open", connErr.Op)
	assert.Equal(t, "/nonexistent", connErr.Location)

	assert.True(t, first.Closed(), "previous port must be released")
	assert.Equal(t, types.StateError, conn.State())
	assert.Empty(t, conn.Location())
	assert.Contains(t, conn.Status().Detail, "no such file")

	// writes and reads are no-ops without a port
	assert.NoError(t, conn.Write([]byte("x")))
	assert.Equal(t, 0, first.WriteCalls())
	data, err := conn.ReadAvailable()
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestApplyOpenBeforeCloseKeepsWorkingPort(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0", devices.WithOpenBeforeClose(true))
	first := tr.Port("/dev/ttyUSB0")

	tr.FailOpen("/dev/ttyUSB9", errors.New("busy"))
	require.Error(t, conn.Apply(lineConfig("/dev/ttyUSB9")))

	assert.False(t, first.Closed())
	assert.Equal(t, types.StateOpen, conn.State())
	assert.Equal(t, "/dev/ttyUSB0", conn.Location())

	require.NoError(t, conn.Apply(lineConfig("/dev/ttyUSB1")))
	assert.True(t, first.Closed())
	assert.Equal(t, "/dev/ttyUSB1", conn.Location())
}

func TestApplyRejectsUnknownEncoding(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := devices.NewConnection(tr, "dev")

	cfg := lineConfig("/dev/ttyUSB0")
	cfg.Encoding = "ebcdic"
	err := conn.Apply(cfg)

	assert.ErrorIs(t, err, devices.ErrInvalidConfig)
	assert.Equal(t, types.StateError, conn.State())
	assert.Empty(t, tr.OpenCalls())
}

func TestReadTextDecodesAndCounts(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")

	port.Feed([]byte("héllo\n"))
	text, err := conn.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "héllo\n", text)
	assert.Equal(t, uint64(7), conn.Status().BytesRead)

	text, err = conn.ReadText()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestReadTextJoinsSplitSequence(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")

	euro := []byte("€")
	port.Feed(euro[:1])
	text, err := conn.ReadText()
	require.NoError(t, err)
	assert.Empty(t, text)

	port.Feed(euro[1:])
	text, err = conn.ReadText()
	require.NoError(t, err)
	assert.Equal(t, "€", text)
}

func TestReadErrorClosesConnection(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")

	port.Feed([]byte("last words"))
	port.FailRead(errors.New("device unplugged"))

	data, err := conn.ReadAvailable()
	require.NoError(t, err)
	assert.Equal(t, "last words", string(data))

	data, err = conn.ReadAvailable()
	assert.Empty(t, data)
	var connErr *devices.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "read", connErr.Op)

	assert.True(t, port.Closed())
	assert.Equal(t, types.StateError, conn.State())
	assert.Contains(t, conn.Status().Detail, "unplugged")

	data, err = conn.ReadAvailable()
	assert.NoError(t, err)
	assert.Empty(t, data)
}

func TestWriteSendsWholePayload(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")

	require.NoError(t, conn.Write([]byte("PING\n")))
	assert.Equal(t, "PING\n", string(port.Written()))
	assert.Equal(t, 1, port.WriteCalls())
	assert.Equal(t, uint64(5), conn.Status().BytesWritten)
}

func TestWriteOnUnopenedConnectionIsNoop(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := devices.NewConnection(tr, "dev")

	assert.NoError(t, conn.Write([]byte("hello")))
	assert.Empty(t, tr.OpenCalls())
	assert.Equal(t, uint64(0), conn.Status().BytesWritten)
}

func TestWriteShortIsReported(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")
	port.LimitWrite(3)

	err := conn.Write([]byte("hello"))

	var writeErr *devices.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 3, writeErr.Written)
	assert.Equal(t, 5, writeErr.Expected)
	assert.ErrorIs(t, err, io.ErrShortWrite)
	assert.Equal(t, 1, port.WriteCalls(), "short writes are not retried")
	assert.Equal(t, types.StateOpen, conn.State())
}

func TestWriteTransportError(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	boom := errors.New("i/o error")
	tr.Port("/dev/ttyUSB0").FailWrite(boom)

	err := conn.Write([]byte("x"))

	var writeErr *devices.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.ErrorIs(t, err, boom)
}

func TestCloseIsIdempotent(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")
	port := tr.Port("/dev/ttyUSB0")

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	assert.Equal(t, 1, port.CloseCalls())
	assert.Equal(t, types.StateClosed, conn.State())
	assert.Empty(t, conn.Location())

	// a closed connection can be applied again
	require.NoError(t, conn.Apply(lineConfig("/dev/ttyUSB0")))
	assert.Equal(t, types.StateOpen, conn.State())
}

func TestRetireClosesAndRefusesApply(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")

	require.NoError(t, conn.Retire())
	assert.True(t, tr.Port("/dev/ttyUSB0").Closed())

	err := conn.Apply(lineConfig("/dev/ttyUSB0"))

	assert.ErrorIs(t, err, devices.ErrRetired)
	assert.Equal(t, types.StateClosed, conn.State())
	assert.Len(t, tr.OpenCalls(), 1, "no open after retirement")
}

func TestSetNameOnlyRelabels(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")

	conn.SetName("gps")

	assert.Equal(t, "gps", conn.Name())
	assert.Equal(t, types.StateOpen, conn.State())
	assert.Len(t, tr.OpenCalls(), 1)
}

func TestConcurrentUseWhileReconfiguring(t *testing.T) {
	tr := testutil.NewMockTransport()
	conn := openConnection(t, tr, "/dev/ttyUSB0")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			if _, err := conn.ReadText(); err != nil {
				t.Errorf("read: %v", err)
				return
			}
			_ = conn.Write([]byte("x"))
			_ = conn.Status()
		}
	}()
	for i := 0; i < 50; i++ {
		location := "/dev/ttyUSB0"
		if i%2 == 1 {
			location = "/dev/ttyUSB1"
		}
		require.NoError(t, conn.Apply(lineConfig(location)))
	}
	<-done

	assert.Equal(t, types.StateOpen, conn.State())
	assert.Equal(t, "/dev/ttyUSB1", conn.Location())
}
