package ldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ticket-inventory/internal/status"

	"github.com/shopspring/decimal"
)

const (
	GrantTypeDefaultStr = "client_credentials"
)

// refreshAccessToken renews the token every 3 minutes, or as soon as a call
// reports 401, retrying with exponential backoff.
func (l *ldb) refreshAccessToken(ctx context.Context) {
	ticker := time.NewTicker(3 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-l.toggleTokenRefresher:
			slog.Info("LDB access token rejected, refreshing")
		}

		backOff := time.Second

	Retry:
		for {
			token, err := l.connect(ctx)
			if err == nil {
				l.setAccessToken(token)
				break Retry
			}

			slog.Warn("LDB token refresh failed", "error", err, "retry_in", backOff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backOff):
				backOff *= 2
			}
		}
	}
}

func (l *ldb) setAccessToken(accessToken string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.accessToken = accessToken
}

func (l *ldb) getAccessToken() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accessToken
}

func (l *ldb) requestUnauthorizedRefresh() {
	select {
	case l.toggleTokenRefresher <- struct{}{}:
	default:
	}
}

// connect performs the OAuth client-credentials grant.
func (l *ldb) connect(ctx context.Context) (string, error) {
	query := url.Values{"grant_type": []string{GrantTypeDefaultStr}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.accessTokenBaseURL, strings.NewReader(query.Encode()))
	if err != nil {
		return "", fmt.Errorf("connectLDB: http.NewRequestWithContext: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(l.clientID, l.clientSecret)

	resp, err := l.hc.Do(req)
	if err != nil {
		return "", fmt.Errorf("connectLDB: http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		rbody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("connectLDB: resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, rbody)
	}

	var reply struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "", fmt.Errorf("connectLDB: json.Decode: %w", err)
	}

	return fmt.Sprintf("%s %s", reply.TokenType, reply.AccessToken), nil
}

type (
	TxReply struct {
		Status       string       `json:"status"`
		Message      string       `json:"message"`
		DataResponse DataResponse `json:"dataResponse"`
	}

	DataResponse struct {
		PartnerOrderID   string            `json:"partnerOrderID"`
		PartnerPaymentID string            `json:"partnerPaymentID"`
		TxnItem          []TransactionItem `json:"txnItem"`
	}

	TransactionItem struct {
		ProcessingStatus string          `json:"processingStatus"`
		PaymentBank      string          `json:"paymentBank"`
		PaymentAt        string          `json:"paymentAt"`
		PaymentReference string          `json:"paymentReference"`
		Amount           decimal.Decimal `json:"amount"`
		Currency         string          `json:"currency"`
	}
)

// checkTransaction queries the payment inquiry service.
func (l *ldb) checkTransaction(ctx context.Context, refID2, reqTxUUID string) (*Tx, error) {
	queryParams := url.Values{}
	queryParams.Set("reference2", refID2)

	endpoint := fmt.Sprintf("%s/vboxConsumers/api/v1/qrpayment/%s/inquiry.service?%s", l.baseURL, url.PathEscape(reqTxUUID), queryParams.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionLDB http.NewRequestWithContext: %w", err)
	}
	req = l.setHeaders(req, reqTxUUID)

	resp, err := l.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionLDB http.Do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		l.requestUnauthorizedRefresh()
		return nil, errors.New("checkTransactionLDB resp.StatusCode: 401 => Unauthorized")
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("checkTransactionLDB resp.StatusCode: %d, resp.Body: %s", resp.StatusCode, respBody)
	}

	var reply TxReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return nil, fmt.Errorf("checkTransactionLDB json.Decode: %w", err)
	}

	if reply.Status != "00" {
		switch reply.Message {
		case "INQUIRY_TXN_EMPTY":
			return nil, status.ErrRefCodeNotFound
		case "PARTNER_ID_INCORRECT":
			slog.Error("LDB rejected partner id", "partner_id", l.partnerID)
			return nil, status.ErrFailedPayment
		}
		return nil, fmt.Errorf("checkTransactionLDB reply.Status: %v, reply.Message: %v", reply.Status, reply.Message)
	}
	if len(reply.DataResponse.TxnItem) == 0 {
		return nil, status.ErrRefCodeNotFound
	}

	txItem := reply.DataResponse.TxnItem[0]
	createdAt, err := time.ParseInLocation("2006-01-02 15:04:05", txItem.PaymentAt, time.Local)
	if err != nil {
		return nil, fmt.Errorf("checkTransactionLDB paymentAt: %w", err)
	}

	return &Tx{
		RefID:       txItem.PaymentReference,
		UUID:        reply.DataResponse.PartnerOrderID,
		RefNumber:   reply.DataResponse.PartnerPaymentID,
		Ccy:         txItem.Currency,
		Amount:      txItem.Amount,
		PaymentBank: txItem.PaymentBank,
		CreatedAt:   createdAt,
	}, nil
}
