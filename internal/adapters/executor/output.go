package executor

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"github.com/flowforge/flowforge/internal/domain"
)

func (e *Executor) executeOutput(ctx context.Context, execution *domain.PipelineExecution, node domain.PipelineNode, inputs domain.NodeInputs) (domain.NodeOutputs, error) {
	outputType := node.ConfigString("outputType")
	data := primaryData(inputs)

	switch outputType {
	case "file":
		return e.writeFile(node, data)
	case "api":
		return e.writeAPI(ctx, node, data)
	case "database":
		return nil, domain.NewNodeError(node.ID, "database sink not implemented", nil)
	case "display":
		return e.display(execution, node, data), nil
	default:
		return nil, domain.NewNodeError(node.ID,
			fmt.Sprintf("unknown output type %q", outputType),
			map[string]interface{}{"output_type": outputType})
	}
}

func (e *Executor) writeFile(node domain.PipelineNode, data interface{}) (domain.NodeOutputs, error) {
	path := node.ConfigString("filePath")
	if path == "" {
		return nil, domain.NewNodeError(node.ID, "file output requires filePath", nil)
	}
	format := node.ConfigString("format")
	if format == "" {
		format = strings.TrimPrefix(filepath.Ext(path), ".")
	}

	serialized, err := serialize(data, format)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("serialize %s: %v", format, err),
			map[string]interface{}{"format": format})
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domain.NewNodeError(node.ID, fmt.Sprintf("create %s: %v", dir, err),
				map[string]interface{}{"path": path})
		}
	}

	if err := os.WriteFile(path, serialized, 0o644); err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("write %s: %v", path, err),
			map[string]interface{}{"path": path})
	}

	e.logger.Debug("output written", "node_id", node.ID, "path", path, "bytes", len(serialized))

	return domain.NodeOutputs{
		"data":   data,
		"path":   path,
		"format": format,
	}, nil
}

func serialize(data interface{}, format string) ([]byte, error) {
	switch format {
	case "json", "":
		return json.MarshalIndent(data, "", "  ")
	case "yaml", "yml":
		return yaml.Marshal(data)
	case "csv":
		return serializeCSV(data)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// serializeCSV writes record maps with a header derived from the first
// record's keys, sorted for deterministic output.
func serializeCSV(data interface{}) ([]byte, error) {
	items := records(data)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	var header []string
	for _, item := range items {
		record, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("csv output requires record maps, got %T", item)
		}
		if header == nil {
			for key := range record {
				header = append(header, key)
			}
			sort.Strings(header)
			if err := writer.Write(header); err != nil {
				return nil, err
			}
		}
		row := make([]string, len(header))
		for i, key := range header {
			row[i] = fmt.Sprintf("%v", record[key])
		}
		if err := writer.Write(row); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	return buf.Bytes(), writer.Error()
}

func (e *Executor) writeAPI(ctx context.Context, node domain.PipelineNode, data interface{}) (domain.NodeOutputs, error) {
	url := node.ConfigString("url")
	if url == "" {
		url = node.ConfigString("endpoint")
	}
	if url == "" {
		return nil, domain.NewNodeError(node.ID, "api output requires url", nil)
	}
	method := strings.ToUpper(node.ConfigString("method"))
	if method == "" {
		method = http.MethodPost
	}

	body, err := json.Marshal(data)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("marshal body: %v", err), nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("build request: %v", err),
			map[string]interface{}{"url": url})
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("%s %s: %v", method, url, err),
			map[string]interface{}{"url": url})
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, domain.NewNodeError(node.ID, fmt.Sprintf("%s %s: status %d", method, url, resp.StatusCode),
			map[string]interface{}{"url": url, "status": resp.StatusCode})
	}

	return domain.NodeOutputs{
		"data":   data,
		"url":    url,
		"status": resp.StatusCode,
	}, nil
}

// display emits the payload as a UI event instead of persisting it.
func (e *Executor) display(execution *domain.PipelineExecution, node domain.PipelineNode, data interface{}) domain.NodeOutputs {
	if e.emitter != nil {
		e.emitter.Publish(domain.ExecutionTopic(execution.ID), domain.Event{
			Type:        domain.EventOutputDisplay,
			ExecutionID: execution.ID,
			PipelineID:  execution.Pipeline.ID,
			NodeID:      node.ID,
			Data:        map[string]interface{}{"data": data},
			Timestamp:   time.Now(),
		})
	}
	return domain.NodeOutputs{
		"data":      data,
		"displayed": true,
	}
}
