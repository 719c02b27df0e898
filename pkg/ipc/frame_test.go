package ipc

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestLineReaderReassemblesAcrossReads(t *testing.T) {
	ping, err := Encode(NewMessage(Ping{}, "test"))
	require.NoError(t, err)
	discover, err := Encode(NewMessage(DiscoverRequest{WorkspacePath: "/w"}, "test"))
	require.NoError(t, err)

	stream := append(append([]byte{}, ping...), discover...)
	reader := NewLineReader(iotest.OneByteReader(bytes.NewReader(stream)))

	first, err := reader.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindPing, first.Kind)

	second, err := reader.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindDiscover, second.Kind)

	_, err = reader.ReadMessage()
	require.ErrorIs(t, err, io.EOF)
}

func TestLineReaderSplitsMultipleRecordsInOneChunk(t *testing.T) {
	reader := NewLineReader(strings.NewReader("a\nb\r\n\nc\n"))
	var got []string
	for {
		line, err := reader.ReadLine()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		got = append(got, string(line))
	}
	require.Equal(t, []string{"a", "b", "", "c"}, got)
}

func TestLineReaderDropsUnterminatedTail(t *testing.T) {
	reader := NewLineReader(strings.NewReader("complete\npartial"))
	line, err := reader.ReadLine()
	require.NoError(t, err)
	require.Equal(t, "complete", string(line))
	_, err = reader.ReadLine()
	require.ErrorIs(t, err, io.EOF)
}

func TestLineReaderRejectsOversizedRecord(t *testing.T) {
	big := strings.Repeat("x", MaxLineSize+10) + "\n"
	_, err := NewLineReader(strings.NewReader(big)).ReadLine()
	require.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadMessageSkipsInvalidRecords(t *testing.T) {
	pong, err := Encode(NewMessage(Pong{}, "test"))
	require.NoError(t, err)
	stream := "{\n" + `{"type":1}` + "\n" + string(pong)
	msg, err := NewLineReader(strings.NewReader(stream)).ReadMessage()
	require.NoError(t, err)
	require.Equal(t, KindPong, msg.Kind)
}
