package internal

import "testing"

func TestChunkWriterClusterBoundaryProtocol(t *testing.T) {
	c := NewChunkWriter()
	c.Write([]byte("preamble"))

	if _, ready := c.ChunkReady(); ready {
		t.Fatalf("chunk should not be ready before any boundary notification")
	}

	c.NotifyPreambleDone()
	length, ready := c.ChunkReady()
	if !ready || length != len("preamble") {
		t.Fatalf("ChunkReady = (%d, %v), want (%d, true)", length, ready, len("preamble"))
	}

	out := make([]byte, length)
	n, err := c.ReadChunk(out)
	if err != nil {
		t.Fatalf("ReadChunk: %v", err)
	}
	if string(out[:n]) != "preamble" {
		t.Fatalf("chunk content = %q, want %q", out[:n], "preamble")
	}
	if _, ready := c.ChunkReady(); ready {
		t.Fatalf("chunk_end should reset to 0 after ReadChunk")
	}

	c.Write([]byte("cluster1"))
	c.NotifyClusterStart() // marks "cluster1" ready, since it preceded this call
	c.Write([]byte("cluster2"))

	length, ready = c.ChunkReady()
	if !ready || length != len("cluster1") {
		t.Fatalf("ChunkReady after second boundary = (%d, %v), want (%d, true)", length, ready, len("cluster1"))
	}
}

func TestChunkWriterReadChunkErrors(t *testing.T) {
	c := NewChunkWriter()
	out := make([]byte, 10)
	if _, err := c.ReadChunk(out); err != ErrNoChunkReady {
		t.Fatalf("expected ErrNoChunkReady, got %v", err)
	}

	c.Write([]byte("0123456789"))
	c.NotifyPreambleDone()
	small := make([]byte, 2)
	if _, err := c.ReadChunk(small); err != ErrBufferTooSmall {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
}

func TestChunkWriterFinalizeShipsTrailingBytes(t *testing.T) {
	c := NewChunkWriter()
	c.Write([]byte("trailing"))
	c.Finalize()
	length, ready := c.ChunkReady()
	if !ready || length != len("trailing") {
		t.Fatalf("Finalize did not stamp chunk_end over trailing bytes")
	}
}
