// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/AleutianAI/voice-router/services/router/retry"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// Store is the straight-passthrough admin persistence surface over the
// descriptor index: create, read, update, delete, with no business logic.
//
// Not-found responses are treated as retriable here (unlike the resolver's
// zero-hit case, which is terminal): a freshly indexed document may not be
// visible to a follower node yet. After the attempt cap the caller still
// receives ErrNotFound.
//
// Thread Safety: Store is safe for concurrent use.
type Store struct {
	es     *elasticsearch.Client
	index  string
	retry  retry.Config
	logger *slog.Logger
}

// NewStore creates a Store over es. Empty index selects DefaultIndex; a zero
// retry config selects the shared default.
func NewStore(es *elasticsearch.Client, index string, retryCfg retry.Config) (*Store, error) {
	if es == nil {
		return nil, fmt.Errorf("catalog: elasticsearch client must not be nil")
	}
	if index == "" {
		index = DefaultIndex
	}
	if retryCfg.MaxAttempts == 0 {
		retryCfg = retry.DefaultConfig()
	}
	return &Store{
		es:     es,
		index:  index,
		retry:  retryCfg,
		logger: slog.Default(),
	}, nil
}

// classify maps an esapi response status to the store's error taxonomy.
func (s *Store) classify(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	if res.StatusCode == http.StatusNotFound {
		return retry.Transient(fmt.Errorf("catalog: %s: %w", op, ErrNotFound))
	}
	err := fmt.Errorf("catalog: %s returned status %d", op, res.StatusCode)
	if retry.IsRetryableHTTPStatus(res.StatusCode) {
		return retry.Transient(err)
	}
	return err
}

// Create indexes a new descriptor and returns its generated document ID.
func (s *Store) Create(ctx context.Context, desc *ApiDescriptor) (string, error) {
	if err := desc.Validate(); err != nil {
		return "", err
	}
	body, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("catalog: marshaling descriptor: %w", err)
	}

	var id string
	err = retry.Do(ctx, s.retry, func() error {
		res, doErr := s.es.Index(s.index, bytes.NewReader(body), s.es.Index.WithContext(ctx))
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: index request failed: %w", doErr))
		}
		defer res.Body.Close()
		if cErr := s.classify(res, "create"); cErr != nil {
			return cErr
		}
		var out struct {
			ID string `json:"_id"`
		}
		if decErr := json.NewDecoder(res.Body).Decode(&out); decErr != nil {
			return fmt.Errorf("catalog: parsing index response: %w", decErr)
		}
		id = out.ID
		return nil
	})
	if err != nil {
		return "", err
	}

	s.logger.Info("Descriptor created",
		slog.String("id", id),
		slog.String("api_uri", desc.ApiURI),
	)
	return id, nil
}

// Get fetches one descriptor by document ID. Returns ErrNotFound when the
// document does not exist.
func (s *Store) Get(ctx context.Context, id string) (*StoredDescriptor, error) {
	var stored *StoredDescriptor
	err := retry.Do(ctx, s.retry, func() error {
		res, doErr := s.es.Get(s.index, id, s.es.Get.WithContext(ctx))
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: get request failed: %w", doErr))
		}
		defer res.Body.Close()
		if cErr := s.classify(res, "get"); cErr != nil {
			return cErr
		}
		var out struct {
			ID     string        `json:"_id"`
			Source ApiDescriptor `json:"_source"`
		}
		if decErr := json.NewDecoder(res.Body).Decode(&out); decErr != nil {
			return fmt.Errorf("catalog: parsing get response: %w", decErr)
		}
		stored = &StoredDescriptor{ID: out.ID, ApiDescriptor: out.Source}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// List returns every descriptor in the index.
func (s *Store) List(ctx context.Context) ([]StoredDescriptor, error) {
	var out []StoredDescriptor
	err := retry.Do(ctx, s.retry, func() error {
		// Fresh reader per attempt; a retry must not see a drained body.
		body := strings.NewReader(`{"query":{"match_all":{}},"size":10000}`)
		res, doErr := s.es.Search(
			s.es.Search.WithContext(ctx),
			s.es.Search.WithIndex(s.index),
			s.es.Search.WithBody(body),
		)
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: list request failed: %w", doErr))
		}
		defer res.Body.Close()
		if res.StatusCode == http.StatusNotFound {
			// Empty index, empty catalog.
			out = []StoredDescriptor{}
			return nil
		}
		if cErr := s.classify(res, "list"); cErr != nil {
			return cErr
		}

		raw, readErr := io.ReadAll(res.Body)
		if readErr != nil {
			return retry.Transient(fmt.Errorf("catalog: reading list response: %w", readErr))
		}
		var parsed struct {
			Hits struct {
				Hits []struct {
					ID     string        `json:"_id"`
					Source ApiDescriptor `json:"_source"`
				} `json:"hits"`
			} `json:"hits"`
		}
		if umErr := json.Unmarshal(raw, &parsed); umErr != nil {
			return fmt.Errorf("catalog: parsing list response: %w", umErr)
		}
		out = make([]StoredDescriptor, 0, len(parsed.Hits.Hits))
		for _, h := range parsed.Hits.Hits {
			out = append(out, StoredDescriptor{ID: h.ID, ApiDescriptor: h.Source})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Update replaces the stored fields of an existing descriptor.
// Returns ErrNotFound when the document does not exist.
func (s *Store) Update(ctx context.Context, id string, desc *ApiDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(map[string]any{"doc": desc})
	if err != nil {
		return fmt.Errorf("catalog: marshaling update: %w", err)
	}

	err = retry.Do(ctx, s.retry, func() error {
		res, doErr := s.es.Update(s.index, id, bytes.NewReader(body), s.es.Update.WithContext(ctx))
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: update request failed: %w", doErr))
		}
		defer res.Body.Close()
		return s.classify(res, "update")
	})
	if err != nil {
		return err
	}

	s.logger.Info("Descriptor updated",
		slog.String("id", id),
		slog.String("api_uri", desc.ApiURI),
	)
	return nil
}

// Delete removes a descriptor by document ID.
// Returns ErrNotFound when the document does not exist.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := retry.Do(ctx, s.retry, func() error {
		res, doErr := s.es.Delete(s.index, id, s.es.Delete.WithContext(ctx))
		if doErr != nil {
			return retry.Transient(fmt.Errorf("catalog: delete request failed: %w", doErr))
		}
		defer res.Body.Close()
		return s.classify(res, "delete")
	})
	if err != nil {
		return err
	}

	s.logger.Info("Descriptor deleted", slog.String("id", id))
	return nil
}
