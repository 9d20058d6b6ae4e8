package apns

import (
	"fmt"

	"github.com/covid19cz/erouska-push/internal/push"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"
	"github.com/sideshow/apns2/token"
)

//Credentials Signing material of one app. Either the P8 key (token auth) or the P12 certificate is used.
type Credentials struct {
	KeyID       string
	TeamID      string
	P8Key       []byte
	P12Cert     []byte
	P12Password string
}

//NewClient Creates client for the environment; DEBUG goes to the sandbox gateway, the rest to production.
func NewClient(env push.Environment, creds Credentials) (*apns2.Client, error) {
	var client *apns2.Client

	switch {
	case len(creds.P8Key) > 0:
		authKey, err := token.AuthKeyFromBytes(creds.P8Key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse APNs P8 key: %w", err)
		}
		client = apns2.NewTokenClient(&token.Token{
			AuthKey: authKey,
			KeyID:   creds.KeyID,
			TeamID:  creds.TeamID,
		})
	case len(creds.P12Cert) > 0:
		cert, err := certificate.FromP12Bytes(creds.P12Cert, creds.P12Password)
		if err != nil {
			return nil, fmt.Errorf("failed to parse APNs certificate: %w", err)
		}
		client = apns2.NewClient(cert)
	default:
		return nil, fmt.Errorf("no APNs credentials for %v", env)
	}

	if env == push.EnvDebug {
		return client.Development(), nil
	}
	return client.Production(), nil
}
