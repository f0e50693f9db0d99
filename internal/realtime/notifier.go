package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/vinocount/session-service/internal/domain"
)

// Таблицы внешнего стора, за которыми следит нотификатор.
const (
	TableInventoryItems      = "inventory_items"
	TableRecognitionAttempts = "recognition_attempts"
	// TableReset — маркер переподключения транспорта: события за время обрыва
	// потеряны, инвалидируем всё.
	TableReset = "*"
)

// ChangeSource — транспорт фида изменений. Переподключение — его забота;
// после реконнекта он обязан выдать reset-маркер.
type ChangeSource interface {
	Subscribe(ctx context.Context) (<-chan domain.ChangeEvent, error)
}

// Notifier превращает события фида в инвалидации производных ключей.
// Payload события не разбирается: любое событие по подходящей таблице
// сбрасывает ключ целиком — фид даёт at-least-once без порядка, и частичный
// патч на таком транспорте был бы некорректен.
type Notifier struct {
	source ChangeSource
}

func NewNotifier(source ChangeSource) *Notifier {
	return &Notifier{source: source}
}

type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Unsubscribe идемпотентен; после возврата onInvalidate больше не зовётся.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (n *Notifier) Subscribe(ctx context.Context, sessionID string, onInvalidate func([]domain.InvalidationKey)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	events, err := n.source.Subscribe(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe change source: %w", err)
	}

	sub := &Subscription{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(sub.done)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				keys := keysFor(ev, sessionID)
				if len(keys) == 0 {
					continue
				}
				onInvalidate(keys)
			}
		}
	}()
	return sub, nil
}

func keysFor(ev domain.ChangeEvent, sessionID string) []domain.InvalidationKey {
	if ev.Table == TableReset {
		return []domain.InvalidationKey{
			domain.KeySessionItems,
			domain.KeySessionList,
			domain.KeyRecognitionAttempts,
		}
	}
	if ev.SessionID != sessionID {
		return nil
	}
	switch ev.Table {
	case TableInventoryItems:
		return []domain.InvalidationKey{domain.KeySessionItems, domain.KeySessionList}
	case TableRecognitionAttempts:
		return []domain.InvalidationKey{domain.KeyRecognitionAttempts}
	}
	return nil
}
