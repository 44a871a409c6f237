// Package popup holds the per-session interaction state of a chat popup
// and the manager that decides which popups are on screen.
package popup

import (
	"NiralaChat/internal/model"
	"NiralaChat/internal/remote"
	"context"
	"errors"
	"sync"
)

var (
	ErrBusy          = errors.New("another payload is being sent")
	ErrNothingStaged = errors.New("no file staged")
)

const DefaultSwipeThreshold = 100

// Controller is the slice of the chat orchestrator a popup drives.
type Controller interface {
	SendMessage(ctx context.Context, conversationID, text string) (model.Message, error)
	SendFile(ctx context.Context, conversationID string, f remote.FileUpload, onProgress remote.ProgressFunc) (model.Message, error)
	MarkAsRead(conversationID string)
	StartTyping(conversationID string)
	StopTyping(conversationID string)
	AddReaction(ctx context.Context, conversationID, messageID, emoji string) error
	RemoveReaction(ctx context.Context, conversationID, messageID, emoji string) error
	MinimizeChat(conversationID string)
	MaximizeChat(conversationID string)
	CloseChat(conversationID string)
	Session(conversationID string) (model.Session, bool)
	SelfID() string
}

const KeyEnter = "Enter"

type Key struct {
	Name  string
	Shift bool
}

// View is what the popup shows besides the session itself.
type View struct {
	ConversationID string `json:"conversationId"`
	Draft          string `json:"draft"`
	Busy           bool   `json:"busy"`
	StagedFile     string `json:"stagedFile,omitempty"`
	DropHighlight  bool   `json:"dropHighlight"`
	Uploading      bool   `json:"uploading"`
	Progress       int    `json:"progress"`
	SwipeOffset    int    `json:"swipeOffset"`
}

type Popup struct {
	conversationID string
	ctrl           Controller
	swipeThreshold int

	mu        sync.Mutex
	draft     string
	busy      bool
	staged    *remote.FileUpload
	dragOver  bool
	uploading bool
	progress  int
	touching  bool
	touchY    int
	offset    int
}

func New(conversationID string, ctrl Controller, swipeThreshold int) *Popup {
	if swipeThreshold <= 0 {
		swipeThreshold = DefaultSwipeThreshold
	}
	return &Popup{
		conversationID: conversationID,
		ctrl:           ctrl,
		swipeThreshold: swipeThreshold,
	}
}

func (p *Popup) ConversationID() string {
	return p.conversationID
}

func (p *Popup) View() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	v := View{
		ConversationID: p.conversationID,
		Draft:          p.draft,
		Busy:           p.busy,
		DropHighlight:  p.dragOver,
		Uploading:      p.uploading,
		Progress:       p.progress,
		SwipeOffset:    p.offset,
	}
	if p.staged != nil {
		v.StagedFile = p.staged.Name
	}
	return v
}

// Input replaces the composer text and counts as a keystroke.
func (p *Popup) Input(text string) {
	p.mu.Lock()
	p.draft = text
	p.mu.Unlock()

	if text != "" {
		p.ctrl.StartTyping(p.conversationID)
	}
}

// KeyDown handles a composer key. Enter submits; shift+Enter is swallowed
// and inserts nothing.
func (p *Popup) KeyDown(ctx context.Context, k Key) error {
	if k.Name != KeyEnter || k.Shift {
		return nil
	}
	return p.Submit(ctx)
}

// Submit sends the draft. The draft is cleared only when the send succeeds
// and the user has not edited it meanwhile.
func (p *Popup) Submit(ctx context.Context) error {
	p.mu.Lock()
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	text := p.draft
	p.busy = true
	p.mu.Unlock()

	_, err := p.ctrl.SendMessage(ctx, p.conversationID, text)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	if err != nil {
		return err
	}
	if p.draft == text {
		p.draft = ""
	}
	return nil
}

// PickFile stages f from the file picker.
func (p *Popup) PickFile(f remote.FileUpload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged = &f
}

func (p *Popup) DragEnter() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragOver = true
}

func (p *Popup) DragLeave() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragOver = false
}

// Drop stages a file dropped anywhere on the popup, the same as PickFile.
func (p *Popup) Drop(f remote.FileUpload) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dragOver = false
	p.staged = &f
}

// SendStaged uploads the staged file. Success or failure, the staged file
// and the progress bar are cleared afterwards.
func (p *Popup) SendStaged(ctx context.Context) error {
	p.mu.Lock()
	return p.upload(ctx, nil)
}

// SendFile stages f and uploads it in one step. A busy popup rejects f and
// leaves whatever was staged before untouched.
func (p *Popup) SendFile(ctx context.Context, f remote.FileUpload) error {
	p.mu.Lock()
	return p.upload(ctx, &f)
}

// upload must be called with p.mu held; it releases it.
func (p *Popup) upload(ctx context.Context, next *remote.FileUpload) error {
	if p.busy {
		p.mu.Unlock()
		return ErrBusy
	}
	if next != nil {
		p.staged = next
	}
	if p.staged == nil {
		p.mu.Unlock()
		return ErrNothingStaged
	}
	f := *p.staged
	p.busy = true
	p.uploading = true
	p.progress = 0
	p.mu.Unlock()

	_, err := p.ctrl.SendFile(ctx, p.conversationID, f, func(percent int) {
		p.mu.Lock()
		p.progress = percent
		p.mu.Unlock()
	})

	p.mu.Lock()
	defer p.mu.Unlock()
	p.busy = false
	p.uploading = false
	p.progress = 0
	p.staged = nil
	return err
}

func (p *Popup) TouchStart(y int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.touching = true
	p.touchY = y
	p.offset = 0
}

// TouchMove follows the finger downwards. It only moves the popup.
func (p *Popup) TouchMove(y int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.touching {
		return 0
	}
	p.offset = y - p.touchY
	if p.offset < 0 {
		p.offset = 0
	}
	return p.offset
}

// TouchEnd closes the session when the swipe went past the threshold and
// otherwise snaps the popup back. It reports whether the session closed.
func (p *Popup) TouchEnd() bool {
	p.mu.Lock()
	closing := p.touching && p.offset > p.swipeThreshold
	p.touching = false
	p.offset = 0
	p.mu.Unlock()

	if closing {
		p.Close()
	}
	return closing
}

// Focus marks the conversation read if anything from the counterpart is
// still unread.
func (p *Popup) Focus() bool {
	s, ok := p.ctrl.Session(p.conversationID)
	if !ok {
		return false
	}
	if s.UnreadCount == 0 && !hasUnseen(s, p.ctrl.SelfID()) {
		return false
	}
	p.ctrl.MarkAsRead(p.conversationID)
	return true
}

func hasUnseen(s model.Session, selfID string) bool {
	if selfID == "" {
		return false
	}
	for _, m := range s.Messages {
		if m.SenderID != selfID && !m.IsReadBy(selfID) {
			return true
		}
	}
	return false
}

// ToggleReaction removes emoji if the local user already reacted with it and
// adds it otherwise.
func (p *Popup) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	s, ok := p.ctrl.Session(p.conversationID)
	if !ok {
		return p.ctrl.AddReaction(ctx, p.conversationID, messageID, emoji)
	}
	self := p.ctrl.SelfID()
	for _, m := range s.Messages {
		if m.ID == messageID && m.HasReacted(emoji, self) {
			return p.ctrl.RemoveReaction(ctx, p.conversationID, messageID, emoji)
		}
	}
	return p.ctrl.AddReaction(ctx, p.conversationID, messageID, emoji)
}

func (p *Popup) Minimize() {
	p.ctrl.MinimizeChat(p.conversationID)
}

func (p *Popup) Maximize() {
	p.ctrl.MaximizeChat(p.conversationID)
}

func (p *Popup) Close() {
	p.ctrl.StopTyping(p.conversationID)
	p.ctrl.CloseChat(p.conversationID)
}
