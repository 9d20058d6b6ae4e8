package secrets

import (
	"context"
	"fmt"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"github.com/covid19cz/erouska-push/internal/logging"
	secretmanagerpb "google.golang.org/genproto/googleapis/cloud/secretmanager/v1"
)

//Manager is an abstraction over Secret Manager
type Manager interface {
	Get(ctx context.Context, name string) ([]byte, error)
}

//Client Real Secrets Manager client.
type Client struct {
	inner     *secretmanager.Client
	projectID string
}

//NewClient Creates Secret Manager client of the project.
func NewClient(ctx context.Context, projectID string) (*Client, error) {
	inner, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("secretmanager.NewClient: %v", err)
	}
	return &Client{inner: inner, projectID: projectID}, nil
}

//Close Closes the client.
func (c *Client) Close() error {
	return c.inner.Close()
}

//Get Gets value of specified secret.
func (c *Client) Get(ctx context.Context, name string) ([]byte, error) {
	var logger = logging.FromContext(ctx).Named("secrets.Get")

	logger.Debugf("Accessing secret '%v'", name)

	var req = secretmanagerpb.AccessSecretVersionRequest{
		Name: fmt.Sprintf("projects/%v/secrets/%v/versions/latest", c.projectID, name),
	}

	secret, err := c.inner.AccessSecretVersion(ctx, &req)
	if err != nil {
		return nil, fmt.Errorf("Failed to get secret '%v': %v", name, err)
	}

	return secret.GetPayload().GetData(), nil
}

//MockClient Secrets Manager client serving fixed values.
type MockClient map[string][]byte

//Get Gets value of specified secret.
func (c MockClient) Get(ctx context.Context, name string) ([]byte, error) {
	if v, ok := c[name]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("secret '%v' not found", name)
}
