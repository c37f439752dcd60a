package bot

import (
	"context"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

const (
	UpdateTimeout = 5 * time.Minute

	defaultMaxInFlight = 64
)

type UpdateProcessor struct {
	updateHandlers []Handler
	sem            *semaphore.Weighted
	wg             sync.WaitGroup
	now            func() time.Time

	// handling context, outlives the poller and ends with Stop
	ctx    context.Context
	cancel context.CancelFunc
}

func NewUpdateProcessor(handlers []Handler, maxInFlight int) *UpdateProcessor {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &UpdateProcessor{
		updateHandlers: handlers,
		sem:            semaphore.NewWeighted(int64(maxInFlight)),
		now:            time.Now,
		ctx:            ctx,
		cancel:         cancel,
	}
}

func (up *UpdateProcessor) getLogEntry() *log.Entry {
	return log.WithField("object", "UpdateProcessor")
}

func (up *UpdateProcessor) Start(context.Context) error { return nil }

// Stop waits for every dispatched update to finish, or for ctx. Updates
// still running when ctx ends are canceled.
func (up *UpdateProcessor) Stop(ctx context.Context) error {
	defer up.cancel()
	done := make(chan struct{})
	go func() {
		up.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.WithMessage(ctx.Err(), "in-flight updates left")
	}
}

// Dispatch processes u on its own goroutine. It blocks only while every
// worker slot is taken. ctx bounds the wait for a slot, handling itself runs
// until done or until Stop gives up.
func (up *UpdateProcessor) Dispatch(ctx context.Context, u api.Update) error {
	if err := up.sem.Acquire(ctx, 1); err != nil {
		return errors.WithMessage(err, "cant acquire update slot")
	}
	up.wg.Add(1)
	go func() {
		defer up.wg.Done()
		defer up.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				up.getLogEntry().WithField("update_id", u.UpdateID).Errorf("update handling panicked: %v", r)
			}
		}()
		if err := up.Process(up.ctx, &u); err != nil {
			up.getLogEntry().WithField("update_id", u.UpdateID).WithField("error", err.Error()).Error("cant process update")
		}
	}()
	return nil
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	updateTime := up.now()
	switch {
	case u.Message != nil:
		updateTime = time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		updateTime = time.Unix(int64(u.EditedMessage.Date), 0)
		if u.EditedMessage.EditDate > 0 {
			updateTime = time.Unix(int64(u.EditedMessage.EditDate), 0)
		}
	}
	if age := up.now().Sub(updateTime); age > UpdateTimeout {
		up.getLogEntry().WithFields(log.Fields{
			"update_time": updateTime,
			"age":         age,
		}).Debug("Skipping outdated update")
		return nil
	}

	chat := u.FromChat()
	user := u.SentFrom()
	for _, m := range []*api.ChatMemberUpdated{u.MyChatMember, u.ChatMember} {
		if m == nil {
			continue
		}
		if chat == nil {
			chat = &m.Chat
		}
		if user == nil {
			user = &m.From
		}
	}

	for _, handler := range up.updateHandlers {
		if handler == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		proceed, err := handler.Handle(ctx, u, chat, user)
		if err != nil {
			return errors.WithMessage(err, "handling error")
		}
		if !proceed {
			log.Trace("not proceeding")
			return nil
		}
	}
	return nil
}

func GetUpdatesChans(ctx context.Context, source UpdateSource, config api.UpdateConfig, buffer int) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
			}
			updates, err := source.GetUpdates(config)
			if err != nil {
				chErr <- err
				return
			}
			for _, update := range updates {
				if update.UpdateID < config.Offset {
					continue
				}
				config.Offset = update.UpdateID + 1
				select {
				case ch <- update:
				case <-ctx.Done():
					chErr <- ctx.Err()
					return
				}
			}
		}
	}()

	return ch, chErr
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = user.FirstName + " " + user.LastName
		userName = strings.TrimSpace(userName)
	}
	return userName
}

// ExtractContentFromMessage joins every user-authored text part of msg.
func ExtractContentFromMessage(msg *api.Message) string {
	if msg == nil {
		return ""
	}
	parts := []string{msg.Text, msg.Caption}
	if msg.Poll != nil {
		parts = append(parts, msg.Poll.Question)
		for _, option := range msg.Poll.Options {
			parts = append(parts, option.Text)
		}
	}
	if msg.ReplyMarkup != nil {
		for _, row := range msg.ReplyMarkup.InlineKeyboard {
			for _, button := range row {
				parts = append(parts, button.Text)
			}
		}
	}
	for _, entity := range append(append([]api.MessageEntity{}, msg.Entities...), msg.CaptionEntities...) {
		if entity.URL != "" {
			parts = append(parts, entity.URL)
		}
	}

	var b strings.Builder
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(part)
	}
	return b.String()
}
