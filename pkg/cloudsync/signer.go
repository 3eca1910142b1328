package cloudsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strings"
	"time"
)

const (
	algorithm   = "S4-HMAC-SHA256"
	serviceName = "s4"
	requestTag  = "s4_request"
	dateFormat  = "20060102T150405Z"
)

// Credentials authenticates requests to the bucket endpoint.
type Credentials struct {
	AccessKey string
	SecretKey string
	Region    string
}

// signRequest signs req per the bucket contract's canonical-request scheme:
// a SigV4-shaped "host, x-amz-date, sha256(body), sorted signed headers,
// HMAC chain kDate->kRegion->kService->kRequest" construction, but under
// the "S4-HMAC-SHA256" algorithm name so it is never mistaken for, or
// accidentally interoperable with, real AWS SigV4.
func signRequest(req *http.Request, body []byte, creds Credentials, now time.Time) {
	amzDate := now.UTC().Format(dateFormat)
	dateStamp := amzDate[:8]
	payloadHash := hexSHA256(body)

	req.Header.Set("x-amz-date", amzDate)
	req.Header.Set("x-amz-content-sha256", payloadHash)
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	canonicalHeaders, signedHeaders := canonicalizeHeaders(req)
	canonicalRequest := strings.Join([]string{
		req.Method,
		canonicalURI(req),
		req.URL.RawQuery,
		canonicalHeaders,
		signedHeaders,
		payloadHash,
	}, "\n")

	scope := strings.Join([]string{dateStamp, creds.Region, serviceName, requestTag}, "/")
	stringToSign := strings.Join([]string{
		algorithm,
		amzDate,
		scope,
		hexSHA256([]byte(canonicalRequest)),
	}, "\n")

	signingKey := deriveSigningKey(creds.SecretKey, dateStamp, creds.Region)
	signature := hex.EncodeToString(hmacSHA256(signingKey, []byte(stringToSign)))

	auth := algorithm + " " +
		"Credential=" + creds.AccessKey + "/" + scope + ", " +
		"SignedHeaders=" + signedHeaders + ", " +
		"Signature=" + signature
	req.Header.Set("Authorization", auth)
}

// deriveSigningKey walks the kDate->kRegion->kService->kRequest HMAC chain.
func deriveSigningKey(secret, dateStamp, region string) []byte {
	kDate := hmacSHA256([]byte(secret), []byte(dateStamp))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(serviceName))
	return hmacSHA256(kService, []byte(requestTag))
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func hexSHA256(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func canonicalURI(req *http.Request) string {
	if req.URL.Path == "" {
		return "/"
	}
	return req.URL.Path
}

// canonicalizeHeaders returns the lower-cased, sorted "key:value\n" block
// and the semicolon-joined signed-header list, over Host plus every
// x-amz-* header, matching SigV4's minimal signed-header set.
func canonicalizeHeaders(req *http.Request) (canonical, signed string) {
	headers := map[string]string{"host": req.Host}
	for k, v := range req.Header {
		lk := strings.ToLower(k)
		if strings.HasPrefix(lk, "x-amz-") && len(v) > 0 {
			headers[lk] = strings.TrimSpace(v[0])
		}
	}
	names := make([]string, 0, len(headers))
	for k := range headers {
		names = append(names, k)
	}
	sort.Strings(names)

	var cb strings.Builder
	for _, k := range names {
		cb.WriteString(k)
		cb.WriteByte(':')
		cb.WriteString(headers[k])
		cb.WriteByte('\n')
	}
	return cb.String(), strings.Join(names, ";")
}
