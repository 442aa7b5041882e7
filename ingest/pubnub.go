package ingest

import (
	"errors"
	"fmt"
	"sync"

	pubnub "github.com/pubnub/go/v7"

	"github.com/AliToori/TradeDeskBot/config"
)

// PubNub is a Transport over one PubNub client owned by this value.
type PubNub struct {
	pn       *pubnub.PubNub
	listener *pubnub.Listener
	done     chan struct{}
	once     sync.Once
}

func NewPubNub(cfg config.Config) (*PubNub, error) {
	if cfg.PubNubSubscribeKey == "" {
		return nil, errors.New("pubnub subscribe key is not configured")
	}
	pcfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PubNubUserID))
	pcfg.SubscribeKey = cfg.PubNubSubscribeKey
	pcfg.PublishKey = cfg.PubNubPublishKey

	return &PubNub{
		pn:       pubnub.NewPubNub(pcfg),
		listener: pubnub.NewListener(),
		done:     make(chan struct{}),
	}, nil
}

func (p *PubNub) Subscribe(channel string, h Handler) error {
	p.pn.AddListener(p.listener)
	go p.dispatch(h)
	p.pn.Subscribe().Channels([]string{channel}).Execute()
	return nil
}

func (p *PubNub) dispatch(h Handler) {
	for {
		select {
		case <-p.done:
			return
		case st := <-p.listener.Status:
			if st == nil {
				continue
			}
			h.OnStatus(statusOf(st.Category), fmt.Sprint(st.Category))
		case msg := <-p.listener.Message:
			if msg == nil {
				continue
			}
			h.OnMessage(msg.Message)
		case <-p.listener.Presence:
		}
	}
}

func statusOf(c pubnub.StatusCategory) Status {
	switch c {
	case pubnub.PNConnectedCategory:
		return StatusConnected
	case pubnub.PNReconnectedCategory:
		return StatusReconnected
	case pubnub.PNDisconnectedCategory, pubnub.PNTimeoutCategory, pubnub.PNReconnectionAttemptsExhausted:
		return StatusDisconnected
	}
	return StatusOther
}

// Publish sends descriptors to channel in the format Listener consumes.
func (p *PubNub) Publish(channel string, descriptors []string) error {
	_, status, err := p.pn.Publish().
		Channel(channel).
		Message(Payload{PurchaseURLs: descriptors, Instances: 1}).
		Execute()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	if status.Error != nil {
		return fmt.Errorf("publish to %s: %w", channel, status.Error)
	}
	return nil
}

func (p *PubNub) Close() error {
	p.once.Do(func() {
		p.pn.UnsubscribeAll()
		p.pn.RemoveListener(p.listener)
		close(p.done)
		p.pn.Destroy()
	})
	return nil
}
