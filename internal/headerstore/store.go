package headerstore

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"

	"github.com/sarona-RD/chess-pos-db/internal/dberr"
)

const (
	blobFileName  = "header"
	indexFileName = "index"
)

// Store is one game level's append-only header store: a `header` blob and
// an `index` of u64 offsets into it, one per game id. Writers append under
// a mutex; readers resolve a game id through the in-memory offset table
// cached at Open and loaded incrementally as games are added.
type Store struct {
	mu sync.Mutex

	blob  *os.File
	index *os.File

	blobSize int64
	offsets  []uint64 // offsets[id] = byte offset of record id in blob
}

// Open opens (creating if absent) the header/index file pair under dir,
// replaying the index file to rebuild the in-memory offset table.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("headerstore: mkdir %s: %w", dir, err)
	}

	blob, err := os.OpenFile(dir+"/"+blobFileName, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("headerstore: open blob: %w", err)
	}
	index, err := os.OpenFile(dir+"/"+indexFileName, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("headerstore: open index: %w", err)
	}

	st, err := blob.Stat()
	if err != nil {
		blob.Close()
		index.Close()
		return nil, fmt.Errorf("headerstore: stat blob: %w", err)
	}

	idxBytes, err := os.ReadFile(dir + "/" + indexFileName)
	if err != nil {
		blob.Close()
		index.Close()
		return nil, fmt.Errorf("headerstore: read index: %w", err)
	}
	if len(idxBytes)%8 != 0 {
		blob.Close()
		index.Close()
		return nil, fmt.Errorf("%w: index file length %d not a multiple of 8", dberr.ErrCorruptRun, len(idxBytes))
	}
	offsets := make([]uint64, len(idxBytes)/8)
	for i := range offsets {
		offsets[i] = binary.BigEndian.Uint64(idxBytes[i*8 : i*8+8])
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] <= offsets[i-1] {
			blob.Close()
			index.Close()
			return nil, fmt.Errorf("%w: header index offsets not strictly increasing at id %d", dberr.ErrCorruptRun, i)
		}
	}

	return &Store{
		blob:     blob,
		index:    index,
		blobSize: st.Size(),
		offsets:  offsets,
	}, nil
}

// Close closes the underlying files.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.blob.Close()
	if ierr := s.index.Close(); err == nil {
		err = ierr
	}
	return err
}

// AddGame serializes h, appends it to the blob, appends its pre-write
// offset to the index, and returns the new game's id, the index length
// minus one.
func (s *Store) AddGame(h GameHeader) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Encode(nil, h)
	offset := s.blobSize

	if _, err := s.blob.WriteAt(rec, offset); err != nil {
		return 0, fmt.Errorf("headerstore: append blob: %w", err)
	}
	s.blobSize += int64(len(rec))

	id := uint32(len(s.offsets))
	var offBuf [8]byte
	binary.BigEndian.PutUint64(offBuf[:], uint64(offset))
	if _, err := s.index.WriteAt(offBuf[:], int64(id)*8); err != nil {
		return 0, fmt.Errorf("headerstore: append index: %w", err)
	}
	s.offsets = append(s.offsets, uint64(offset))

	return id, nil
}

// NextGameID returns the id that would be assigned to the next AddGame
// call, i.e. the current index length.
func (s *Store) NextGameID() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.offsets))
}

// Query resolves a batch of game ids (as obtained from a run entry's
// game_offset field) to their decoded GameHeader records, preserving input
// order.
func (s *Store) Query(ids []uint32) ([]GameHeader, error) {
	s.mu.Lock()
	offsets := make([]uint64, len(ids))
	n := uint32(len(s.offsets))
	for i, id := range ids {
		if id >= n {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: headerstore: game id %d out of range (have %d)", dberr.ErrNotFound, id, n)
		}
		offsets[i] = s.offsets[id]
	}
	s.mu.Unlock()

	out := make([]GameHeader, len(ids))
	var sizeBuf [2]byte
	for i, off := range offsets {
		if _, err := s.blob.ReadAt(sizeBuf[:], int64(off)); err != nil {
			return nil, fmt.Errorf("headerstore: read size at offset %d: %w", off, err)
		}
		size := binary.BigEndian.Uint16(sizeBuf[:])
		body := make([]byte, size)
		if _, err := s.blob.ReadAt(body, int64(off)+2); err != nil {
			return nil, fmt.Errorf("headerstore: read record at offset %d: %w", off, err)
		}
		h, err := Decode(body)
		if err != nil {
			return nil, fmt.Errorf("headerstore: decode record at offset %d: %w", off, err)
		}
		out[i] = h
	}
	return out, nil
}
