package executor

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/flowforge/flowforge/internal/domain"
)

func (e *Executor) executeInput(ctx context.Context, node domain.PipelineNode) (domain.NodeOutputs, error) {
	sourceType := node.ConfigString("sourceType")

	switch sourceType {
	case "file":
		return e.loadFile(node)
	case "api":
		return e.loadAPI(ctx, node)
	case "database":
		return nil, domain.NewNodeError(node.ID, "database source not implemented", nil)
	default:
		// Unknown source types fall through to the static payload.
		return e.loadStatic(node), nil
	}
}

func (e *Executor) loadStatic(node domain.PipelineNode) domain.NodeOutputs {
	data, ok := node.Config["data"]
	if !ok {
		data = map[string]interface{}{"message": "static input", "nodeId": node.ID}
	}
	return domain.NodeOutputs{
		"data":   data,
		"source": "static",
	}
}

func (e *Executor) loadFile(node domain.PipelineNode) (domain.NodeOutputs, error) {
	path := node.ConfigString("filePath")
	if path == "" {
		return nil, domain.NewNodeError(node.ID, "file input requires filePath", nil)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("read %s: %v", path, err),
			map[string]interface{}{"path": path})
	}

	var data interface{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, domain.NewNodeError(node.ID, fmt.Sprintf("parse json %s: %v", path, err),
				map[string]interface{}{"path": path})
		}
	case ".csv":
		data, err = parseCSV(raw)
		if err != nil {
			return nil, domain.NewNodeError(node.ID, fmt.Sprintf("parse csv %s: %v", path, err),
				map[string]interface{}{"path": path})
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, domain.NewNodeError(node.ID, fmt.Sprintf("parse yaml %s: %v", path, err),
				map[string]interface{}{"path": path})
		}
	default:
		data = string(raw)
	}

	return domain.NodeOutputs{
		"data":   data,
		"source": "file",
		"path":   path,
	}, nil
}

// parseCSV splits rows on the header line, producing one record map per row.
func parseCSV(raw []byte) ([]interface{}, error) {
	reader := csv.NewReader(strings.NewReader(string(raw)))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return []interface{}{}, nil
	}

	header := rows[0]
	records := make([]interface{}, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i < len(row) {
				record[col] = row[i]
			}
		}
		records = append(records, record)
	}
	return records, nil
}

func (e *Executor) loadAPI(ctx context.Context, node domain.PipelineNode) (domain.NodeOutputs, error) {
	url := node.ConfigString("url")
	if url == "" {
		url = node.ConfigString("endpoint")
	}
	if url == "" {
		return nil, domain.NewNodeError(node.ID, "api input requires url", nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("build request: %v", err),
			map[string]interface{}{"url": url})
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("GET %s: %v", url, err),
			map[string]interface{}{"url": url})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("GET %s: status %d", url, resp.StatusCode),
			map[string]interface{}{"url": url, "status": resp.StatusCode})
	}

	var data interface{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("decode response: %v", err),
			map[string]interface{}{"url": url})
	}

	return domain.NodeOutputs{
		"data":   data,
		"source": "api",
		"url":    url,
	}, nil
}
