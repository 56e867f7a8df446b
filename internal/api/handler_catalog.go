package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/ryanbastic/go-docsync/internal/storage"
)

// --- Huma Input/Output types ---

type ListDatabasesInput struct{}

type ListDatabasesOutput struct {
	Body struct {
		Databases []string `json:"databases" doc:"Database names"`
	}
}

type ListContainersInput struct {
	Database string `path:"database" doc:"Database name"`
}

type ListContainersOutput struct {
	Body struct {
		Containers []string `json:"containers" doc:"Container names"`
	}
}

type GetContainerInput struct {
	Database  string `path:"database" doc:"Database name"`
	Container string `path:"container" doc:"Container name"`
}

type ContainerResponse struct {
	Database          string   `json:"database"`
	Name              string   `json:"name"`
	Kind              string   `json:"kind" enum:"document,table"`
	PartitionKeyPaths []string `json:"partition_key_paths"`
	DefaultTTL        *int     `json:"default_ttl,omitempty"`
	UniqueKeyPaths    []string `json:"unique_key_paths,omitempty"`
	IndexingPolicy    string   `json:"indexing_policy,omitempty"`
	IDField           string   `json:"id_field" doc:"Field used to address records for deletes"`
}

type GetContainerOutput struct {
	Body ContainerResponse
}

// --- Handler ---

type CatalogHandler struct {
	catalog storage.Catalog
	logger  *slog.Logger
}

func NewCatalogHandler(catalog storage.Catalog, logger *slog.Logger) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, logger: logger}
}

func registerCatalogRoutes(api huma.API, h *CatalogHandler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-databases",
		Method:      http.MethodGet,
		Path:        "/v1/databases",
		Summary:     "List databases",
		Tags:        []string{"catalog"},
	}, h.ListDatabases)

	huma.Register(api, huma.Operation{
		OperationID: "list-containers",
		Method:      http.MethodGet,
		Path:        "/v1/databases/{database}/containers",
		Summary:     "List the containers of a database",
		Tags:        []string{"catalog"},
	}, h.ListContainers)

	huma.Register(api, huma.Operation{
		OperationID: "get-container",
		Method:      http.MethodGet,
		Path:        "/v1/databases/{database}/containers/{container}",
		Summary:     "Get container metadata",
		Tags:        []string{"catalog"},
	}, h.GetContainer)
}

func (h *CatalogHandler) ListDatabases(ctx context.Context, input *ListDatabasesInput) (*ListDatabasesOutput, error) {
	dbs, err := h.catalog.ListDatabases(ctx)
	if err != nil {
		return nil, apiError(h.logger, "list databases", err)
	}
	out := &ListDatabasesOutput{}
	out.Body.Databases = nonNil(dbs)
	return out, nil
}

func (h *CatalogHandler) ListContainers(ctx context.Context, input *ListContainersInput) (*ListContainersOutput, error) {
	names, err := h.catalog.ListContainers(ctx, input.Database)
	if err != nil {
		return nil, apiError(h.logger, "list containers", err)
	}
	out := &ListContainersOutput{}
	out.Body.Containers = nonNil(names)
	return out, nil
}

func (h *CatalogHandler) GetContainer(ctx context.Context, input *GetContainerInput) (*GetContainerOutput, error) {
	c, err := h.catalog.Container(ctx, input.Database, input.Container)
	if err != nil {
		return nil, apiError(h.logger, "get container", err)
	}
	meta, err := c.Metadata(ctx)
	if err != nil {
		return nil, apiError(h.logger, "get container", err)
	}
	return &GetContainerOutput{Body: containerToResponse(meta)}, nil
}

func containerToResponse(m *storage.ContainerMetadata) ContainerResponse {
	return ContainerResponse{
		Database:          m.Database,
		Name:              m.Name,
		Kind:              string(m.Kind),
		PartitionKeyPaths: m.PartitionKeyPaths,
		DefaultTTL:        m.DefaultTTL,
		UniqueKeyPaths:    m.UniqueKeyPaths,
		IndexingPolicy:    m.IndexingPolicy,
		IDField:           m.Layout.IDField,
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
