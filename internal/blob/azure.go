package blob

import (
	"context"
	"fmt"
	"path"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// AzureClient implements Client against an Azure Blob Storage container.
type AzureClient struct {
	container *container.Client
}

// NewAzureClient connects to the storage account with a connection string
// and scopes all operations to containerName.
func NewAzureClient(connectionString, containerName string) (*AzureClient, error) {
	svc, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("blob: connect storage account: %w", err)
	}
	return &AzureClient{
		container: svc.ServiceClient().NewContainerClient(containerName),
	}, nil
}

// List pages through every blob under prefix.
func (c *AzureClient) List(ctx context.Context, prefix string) ([]Entry, error) {
	pager := c.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	var entries []Entry
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("blob: list %s: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			entries = append(entries, Entry{
				Name:         path.Base(*item.Name),
				RelativePath: *item.Name,
			})
		}
	}
	return entries, nil
}

// Delete removes one blob; an already-absent blob is treated as deleted.
func (c *AzureClient) Delete(ctx context.Context, relativePath string) error {
	_, err := c.container.NewBlobClient(relativePath).Delete(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil
		}
		return fmt.Errorf("blob: delete %s: %w", relativePath, err)
	}
	return nil
}
