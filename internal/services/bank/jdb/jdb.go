package jdb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ticket-inventory/internal/status"

	pubnub "github.com/pubnub/go/v7"
	"github.com/shopspring/decimal"
)

const Provider = "jdb"

type (
	Config struct {
		BaseURL   string `json:"baseUrl"`
		PartnerID string `json:"partnerId"`
		ClientID  string `json:"clientId"`
		ClientKey string `json:"clientKey"`
		HMACKey   string `json:"hmacKey"`

		// PubNub keys of the channel JDB pushes captured transfers to.
		PNSubKey    string `json:"pn_subkey"`
		PNSubSecret string `json:"pn_subsecret"`
		PNUUID      string `json:"pn_uuid"`
		PNChannel   string `json:"pn_channel"`
		PNCipherKey string `json:"pn_cipherKey"`
	}

	// Yespay is the JDB Yespay merchant API: transaction inquiry over REST and
	// transfer notifications over PubNub.
	Yespay struct {
		client *Client
		sub    *subscription
	}
)

type payload struct {
	RefID         string          `json:"refNo"`
	UUID          string          `json:"billNumber"`
	FCCRef        string          `json:"exReferenceNo"`
	Ccy           string          `json:"sourceCurrency"`
	Payer         string          `json:"sourceName"`
	AccountNumber string          `json:"sourceAccount"`
	Amount        decimal.Decimal `json:"txnAmount"`
	CreatedAt     string          `json:"txnDateTime"`
}

// New authenticates with JDB and, when PubNub keys are configured, starts
// listening for pushed transfers until ctx is cancelled.
func New(ctx context.Context, cfg *Config) (*Yespay, error) {
	client := newClient(&ClientConfig{
		BaseURL:   cfg.BaseURL,
		PartnerID: cfg.PartnerID,
		ClientID:  cfg.ClientID,
		ClientKey: cfg.ClientKey,
		HMACKey:   cfg.HMACKey,
	})

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.refreshAccessToken(ctx)

	y := &Yespay{client: client}

	if cfg.PNSubKey != "" && cfg.PNChannel != "" {
		pnCfg := pubnub.NewConfigWithUserId(pubnub.UserId(cfg.PNUUID))
		pnCfg.SubscribeKey = cfg.PNSubKey
		pnCfg.CipherKey = cfg.PNCipherKey
		pnCfg.SecretKey = cfg.PNSubSecret

		y.sub = newSubscription(pnCfg)
		go y.sub.process(ctx)

		y.sub.pn.Subscribe().Channels([]string{cfg.PNChannel}).Execute()
	}

	return y, nil
}

type subscription struct {
	pn  *pubnub.PubNub
	lis *pubnub.Listener

	mu sync.Mutex
	ch chan *status.Transaction
}

func (s *subscription) receiver() chan *status.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ch
}

func newSubscription(pnCfg *pubnub.Config) *subscription {
	sub := &subscription{
		pn:  pubnub.NewPubNub(pnCfg),
		lis: pubnub.NewListener(),
	}
	sub.pn.AddListener(sub.lis)
	return sub
}

func (s *subscription) process(ctx context.Context) {
	for {
		select {
		case st := <-s.lis.Status:
			switch st.Category {
			case pubnub.PNConnectedCategory:
				slog.Info("Connected to JDB PubNub")
			case pubnub.PNReconnectedCategory:
				slog.Info("Reconnected to JDB PubNub")
			case pubnub.PNDisconnectedCategory, pubnub.PNReconnectionAttemptsExhausted:
				slog.Warn("Disconnected from JDB PubNub", "category", st.Category)
			case pubnub.PNAccessDeniedCategory, pubnub.PNBadRequestCategory:
				slog.Error("JDB PubNub subscription rejected", "category", st.Category)
			}

		case message := <-s.lis.Message:
			tran, err := decodeMessage(message.Message)
			if err != nil {
				slog.Error("Failed to decode JDB transfer notification", "error", err)
				continue
			}
			ch := s.receiver()
			if ch == nil {
				slog.Warn("JDB transfer dropped, no receiver", "bill_number", tran.UUID)
				continue
			}
			select {
			case ch <- tran:
			case <-ctx.Done():
				return
			}

		case <-ctx.Done():
			s.pn.UnsubscribeAll()
			return
		}
	}
}

// decodeMessage accepts the payload either as a JSON string or as an
// already-decoded object.
func decodeMessage(msg any) (*status.Transaction, error) {
	var raw []byte
	switch m := msg.(type) {
	case string:
		raw = []byte(m)
	default:
		b, err := json.Marshal(m)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return p.ToDomain()
}

func (p *payload) ToDomain() (*status.Transaction, error) {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", p.CreatedAt, time.Local)
	if err != nil {
		return nil, err
	}

	return &status.Transaction{
		RefID:         p.RefID,
		UUID:          p.UUID,
		FCCRef:        p.FCCRef,
		Ccy:           p.Ccy,
		Payer:         p.Payer,
		AccountNumber: p.AccountNumber,
		Amount:        p.Amount,
		Provider:      Provider,
		CreatedAt:     ts,
	}, nil
}

// SetTranChannel sets where pushed transfers are delivered.
func (y *Yespay) SetTranChannel(ch chan *status.Transaction) {
	if y.sub == nil {
		return
	}
	y.sub.mu.Lock()
	y.sub.ch = ch
	y.sub.mu.Unlock()
}

func (y *Yespay) CheckTransaction(ctx context.Context, billNumber string) (*status.Transaction, error) {
	return y.client.checkTransaction(ctx, billNumber)
}
