package sandbox

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/martok9803/kyc-faceauth-dev/models"
)

const issuer = "kyc-sandbox"

// TokenSigner issues the credentials the sandbox hands out: upload tokens
// embedded in presigned URLs and receipts for KYC submissions.
type TokenSigner interface {
	CreateUploadToken(key string, expiry time.Duration) (string, error)
	VerifyUploadToken(token, key string) error
	CreateReceipt(submission models.KycSubmitResponse, request models.KycSubmitRequest) (string, error)
}

type uploadClaims struct {
	Key string `json:"key"`
	jwt.RegisteredClaims
}

type receiptClaims struct {
	SessionId string  `json:"sid"`
	IdUrl     string  `json:"id_url"`
	SelfieUrl string  `json:"selfie_url"`
	Matched   bool    `json:"matched"`
	Score     float64 `json:"similarity"`
	jwt.RegisteredClaims
}

// HmacTokenSigner signs HS256 JWTs with a shared secret.
type HmacTokenSigner struct {
	secret []byte
	now    func() time.Time
}

// NewHmacTokenSigner uses secret, or a random one when secret is empty.
func NewHmacTokenSigner(secret string) (*HmacTokenSigner, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
	}
	return &HmacTokenSigner{secret: key, now: time.Now}, nil
}

func (s *HmacTokenSigner) CreateUploadToken(key string, expiry time.Duration) (string, error) {
	now := s.now()
	claims := uploadClaims{
		Key: key,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   "upload",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HmacTokenSigner) VerifyUploadToken(token, key string) error {
	var claims uploadClaims
	_, err := jwt.ParseWithClaims(token, &claims, s.keyFunc)
	if err != nil {
		return fmt.Errorf("invalid upload token: %w", err)
	}
	if claims.Key != key {
		return fmt.Errorf("upload token was issued for %q, not %q", claims.Key, key)
	}
	return nil
}

func (s *HmacTokenSigner) CreateReceipt(submission models.KycSubmitResponse, request models.KycSubmitRequest) (string, error) {
	claims := receiptClaims{
		SessionId: request.SessionId,
		IdUrl:     request.IdUrl,
		SelfieUrl: request.SelfieUrl,
		Matched:   submission.FaceMatch.Matched,
		Score:     submission.FaceMatch.Similarity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   issuer,
			Subject:  submission.SubmissionId,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *HmacTokenSigner) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return s.secret, nil
}
