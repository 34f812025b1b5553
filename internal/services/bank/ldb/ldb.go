package ldb

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const Provider = "ldb"

var _ LDB = (*ldb)(nil)

type (
	Config struct {
		BaseURL        string `json:"base_url"`
		AccessTokenURL string `json:"access_token_url"`

		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`

		PartnerID string `json:"partner_id"`
	}

	ldb struct {
		baseURL            string
		accessTokenBaseURL string

		// clientID and clientSecret are the OAuth client credentials.
		clientID     string
		clientSecret string

		partnerID string

		accessToken string
		mu          sync.Mutex

		// toggleTokenRefresher is used to notify token refresher to refresh token.
		toggleTokenRefresher chan struct{}

		hc *http.Client
	}
)

type LDB interface {
	// CheckTransaction looks up the payment made against reference2.
	CheckTransaction(ctx context.Context, refID2, reqTxUUID string) (*Tx, error)
}

type Tx struct {
	RefID       string
	UUID        string
	RefNumber   string
	Ccy         string
	Amount      decimal.Decimal
	PaymentBank string
	CreatedAt   time.Time
}

// New authenticates with LDB and keeps the token fresh until ctx is cancelled.
func New(ctx context.Context, cfg *Config) (LDB, error) {
	client := newLDB(cfg)

	token, err := client.connect(ctx)
	if err != nil {
		return nil, err
	}
	client.setAccessToken(token)

	go client.refreshAccessToken(ctx)

	return client, nil
}

func newLDB(cfg *Config) *ldb {
	return &ldb{
		baseURL:            strings.TrimRight(cfg.BaseURL, "/"),
		accessTokenBaseURL: cfg.AccessTokenURL,
		clientID:           cfg.ClientID,
		clientSecret:       cfg.ClientSecret,
		partnerID:          cfg.PartnerID,

		toggleTokenRefresher: make(chan struct{}, 1),

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (l *ldb) CheckTransaction(ctx context.Context, refID2, reqTxUUID string) (*Tx, error) {
	return l.checkTransaction(ctx, refID2, reqTxUUID)
}
