package telegram

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// fakeWire is an in-memory mtproto implementation for transport tests.
type fakeWire struct {
	mu sync.Mutex

	connects   int
	connectErr error
	closed     int

	usernames map[string]*Peer // username → peer, only once joined
	ids       map[int64]*Peer  // marked id → peer
	joinErr   error
	joined    []string
	onJoin    func(target string)

	nextDocID int64
	nextMsgID int
	docs      map[int64][]byte // doc id → content
	msgs      map[int]int64    // message id → doc id
	hash      int64

	blockSend chan struct{} // when set, SendDocument waits for ctx or release
	sends     int
}

func newFakeWire() *fakeWire {
	return &fakeWire{
		usernames: map[string]*Peer{},
		ids:       map[int64]*Peer{},
		docs:      map[int64][]byte{},
		msgs:      map[int]int64{},
		hash:      7777,
	}
}

func (f *fakeWire) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connects++
	return nil
}

func (f *fakeWire) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeWire) Self(ctx context.Context) (*Account, error) {
	return &Account{ID: 1, Username: "tester", Phone: "+100000"}, nil
}

func (f *fakeWire) LookupUsername(ctx context.Context, username string) (*Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.usernames[username]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: username %q", ErrResolution, username)
}

func (f *fakeWire) LookupID(ctx context.Context, id int64) (*Peer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.ids[id]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: id %d", ErrResolution, id)
}

func (f *fakeWire) Join(ctx context.Context, target string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, target)
	if f.joinErr != nil {
		return f.joinErr
	}
	if f.onJoin != nil {
		f.onJoin(target)
	}
	return nil
}

func (f *fakeWire) SendDocument(ctx context.Context, peer *Peer, spoolPath, filename, contentType string) (*SentDocument, error) {
	if f.blockSend != nil {
		select {
		case <-f.blockSend:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	content, err := os.ReadFile(spoolPath)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends++
	f.nextDocID++
	f.nextMsgID++
	f.docs[f.nextDocID] = content
	f.msgs[f.nextMsgID] = f.nextDocID
	return &SentDocument{
		ChatID:     peer.ID,
		MessageID:  f.nextMsgID,
		DocID:      f.nextDocID,
		AccessHash: f.hash,
		Size:       int64(len(content)),
	}, nil
}

func (f *fakeWire) FetchMessageDocument(ctx context.Context, chatID int64, messageID int, dst string) error {
	f.mu.Lock()
	docID, ok := f.msgs[messageID]
	content := f.docs[docID]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: message %d", ErrNotFound, messageID)
	}
	return os.WriteFile(dst, content, 0644)
}

func (f *fakeWire) FetchDocument(ctx context.Context, docID, accessHash int64, dst string) error {
	f.mu.Lock()
	content, ok := f.docs[docID]
	storedHash := f.hash
	f.mu.Unlock()
	if !ok || accessHash != storedHash {
		return fmt.Errorf("%w: document %d", ErrNotFound, docID)
	}
	return os.WriteFile(dst, content, 0644)
}
