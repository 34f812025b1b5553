package ldb

import (
	"net/http"
	"time"
)

func (l *ldb) setHeaders(req *http.Request, reqTxUUID string) *http.Request {
	req.Header.Set("Authorization", l.getAccessToken())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("partnerId", l.partnerID)
	req.Header.Set("X-Client-Transaction-ID", reqTxUUID)
	req.Header.Set("X-Client-Transaction-Datetime", time.Now().Format("2006-01-02T15:04:05.999+0700"))

	return req
}
