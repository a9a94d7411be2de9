package internal

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mahino/scalar"
)

// HTTPReferenceProvider fetches live entities from a control-plane list
// API. One POST per kind against {endpoint}/{kind}s/list with basic
// auth; responses carry an "entities" array whose members expose a UUID
// and a display name in a couple of historical shapes.
type HTTPReferenceProvider struct {
	cfg     scalar.ProviderConfig
	client  *http.Client
	breaker *CircuitBreaker
	logger  *zap.SugaredLogger
}

// NewHTTPReferenceProvider creates a provider client.
func NewHTTPReferenceProvider(cfg scalar.ProviderConfig, logger *zap.SugaredLogger) *HTTPReferenceProvider {
	if logger == nil {
		logger = zap.S()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{}
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &HTTPReferenceProvider{
		cfg:     cfg,
		client:  &http.Client{Timeout: timeout, Transport: transport},
		breaker: NewCircuitBreaker(5, time.Minute, 30*time.Second),
		logger:  logger,
	}
}

// Fetch lists entities of one kind (project, account, cluster, subnet,
// image, environment).
func (p *HTTPReferenceProvider) Fetch(ctx context.Context, kind string) ([]scalar.ReferenceItem, error) {
	if p.breaker.IsOpen() {
		return nil, scalar.NewProviderError(kind, fmt.Errorf("provider circuit breaker is open"))
	}
	url := fmt.Sprintf("%s/%ss/list", strings.TrimRight(p.cfg.Endpoint, "/"), kind)
	body, err := json.Marshal(map[string]any{"kind": kind, "length": 250})
	if err != nil {
		return nil, scalar.NewInternalError("failed to encode list request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, scalar.NewProviderError(kind, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)

	resp, err := p.client.Do(req)
	if err != nil {
		p.breaker.RecordFailure()
		return nil, scalar.NewProviderError(kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.breaker.RecordFailure()
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, scalar.NewProviderError(kind,
			fmt.Errorf("list returned status %d: %s", resp.StatusCode, string(payload)))
	}

	var listResp struct {
		Entities []json.RawMessage `json:"entities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listResp); err != nil {
		return nil, scalar.NewProviderError(kind, err)
	}

	items := make([]scalar.ReferenceItem, 0, len(listResp.Entities))
	for _, raw := range listResp.Entities {
		item, ok := parseReferenceEntity(raw)
		if ok {
			items = append(items, item)
		}
	}
	p.breaker.RecordSuccess()
	p.logger.Debugw("fetched references", "kind", kind, "count", len(items))
	return items, nil
}

// parseReferenceEntity pulls uuid and name out of one list entity. Flat
// {uuid,name} entities and nested {metadata:{uuid},status/spec:{name}}
// entities are both accepted.
func parseReferenceEntity(raw json.RawMessage) (scalar.ReferenceItem, bool) {
	var entity struct {
		UUID     string `json:"uuid"`
		Name     string `json:"name"`
		Metadata struct {
			UUID string `json:"uuid"`
			Name string `json:"name"`
		} `json:"metadata"`
		Status struct {
			Name string `json:"name"`
		} `json:"status"`
		Spec struct {
			Name string `json:"name"`
		} `json:"spec"`
	}
	if err := json.Unmarshal(raw, &entity); err != nil {
		return scalar.ReferenceItem{}, false
	}

	uuid := entity.UUID
	if uuid == "" {
		uuid = entity.Metadata.UUID
	}
	if uuid == "" {
		return scalar.ReferenceItem{}, false
	}
	name := entity.Name
	if name == "" {
		name = entity.Status.Name
	}
	if name == "" {
		name = entity.Spec.Name
	}
	if name == "" {
		name = entity.Metadata.Name
	}
	return scalar.ReferenceItem{UUID: uuid, Name: name}, true
}

// Seeder writes live reference UUIDs into a payload template before the
// pipeline runs. The pipeline itself never touches the network; seeding
// is the only stage allowed to.
type Seeder struct {
	provider scalar.ReferenceProvider
	logger   *zap.SugaredLogger
}

// NewSeeder creates a seeder backed by a reference provider.
func NewSeeder(provider scalar.ReferenceProvider, logger *zap.SugaredLogger) *Seeder {
	if logger == nil {
		logger = zap.S()
	}
	return &Seeder{provider: provider, logger: logger}
}

// Seed fetches live references and writes them into the template in
// place. Project, cluster, and image references are required; kinds the
// template has no slot for are skipped.
func (s *Seeder) Seed(ctx context.Context, doc scalar.Document) error {
	project, err := s.first(ctx, "project")
	if err != nil {
		return err
	}
	if project == nil {
		return scalar.NewMissingReferenceError("project")
	}
	s.setProject(doc, *project)

	cluster, err := s.first(ctx, "cluster")
	if err != nil {
		return err
	}
	if cluster == nil {
		return scalar.NewMissingReferenceError("cluster")
	}
	s.setCluster(doc, *cluster)

	image, err := s.first(ctx, "image")
	if err != nil {
		return err
	}
	if image == nil {
		return scalar.NewMissingReferenceError("image")
	}
	s.setImage(doc, *image)

	// Optional kinds.
	if account, err := s.first(ctx, "account"); err == nil && account != nil {
		SetAtPath(doc, scalar.MustParsePath("spec.resources.substrate_definition_list.create_spec.resources.account_uuid"), account.UUID)
	}
	if subnet, err := s.first(ctx, "subnet"); err == nil && subnet != nil {
		s.setSubnet(doc, *subnet)
	}
	if env, err := s.first(ctx, "environment"); err == nil && env != nil {
		SetAtPath(doc, scalar.MustParsePath("spec.environment_reference.uuid"), env.UUID)
	}
	return nil
}

func (s *Seeder) first(ctx context.Context, kind string) (*scalar.ReferenceItem, error) {
	items, err := s.provider.Fetch(ctx, kind)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *Seeder) setProject(doc scalar.Document, item scalar.ReferenceItem) {
	metadata, ok := doc["metadata"].(map[string]any)
	if !ok {
		metadata = map[string]any{}
		doc["metadata"] = metadata
	}
	ref, ok := metadata["project_reference"].(map[string]any)
	if !ok {
		ref = map[string]any{"kind": "project"}
		metadata["project_reference"] = ref
	}
	ref["uuid"] = item.UUID
	if item.Name != "" {
		ref["name"] = item.Name
	}
}

func (s *Seeder) setCluster(doc scalar.Document, item scalar.ReferenceItem) {
	name := item.Name
	if name == "" && len(item.UUID) >= 8 {
		name = "Cluster-" + item.UUID[:8]
	}
	path := scalar.MustParsePath("spec.resources.substrate_definition_list.create_spec.cluster_reference")
	RewriteAtPath(doc, path, func(old any) any {
		ref, ok := old.(map[string]any)
		if !ok {
			ref = map[string]any{"kind": "cluster"}
		}
		ref["uuid"] = item.UUID
		ref["name"] = name
		return ref
	})
}

func (s *Seeder) setSubnet(doc scalar.Document, item scalar.ReferenceItem) {
	path := scalar.MustParsePath("spec.resources.substrate_definition_list.create_spec.resources.nic_list.subnet_reference")
	RewriteAtPath(doc, path, func(old any) any {
		ref, ok := old.(map[string]any)
		if !ok {
			ref = map[string]any{"kind": "subnet"}
		}
		ref["uuid"] = item.UUID
		if item.Name != "" {
			ref["name"] = item.Name
		}
		return ref
	})
}

func (s *Seeder) setImage(doc scalar.Document, item scalar.ReferenceItem) {
	path := scalar.MustParsePath("spec.resources.substrate_definition_list.create_spec.resources.disk_list.data_source_reference")
	RewriteAtPath(doc, path, func(old any) any {
		ref, ok := old.(map[string]any)
		if !ok {
			ref = map[string]any{"kind": "image"}
		}
		ref["uuid"] = item.UUID
		if item.Name != "" {
			ref["name"] = item.Name
		}
		return ref
	})
}
