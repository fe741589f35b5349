package memserver

import (
	"maps"
	"net/http"
	"strconv"
	"strings"

	"github.com/hanpama/docdb/internal/codec"
	"github.com/hanpama/docdb/internal/wire"
)

const errorNumUniqueConstraint = 1210

// routeEdge serves /_api/gharial/{graph}/edge/{collection}[/{key}]. Graphs
// are not modelled; edge collections are created on first use.
func (s *Server) routeEdge(req *wire.Request, graph string, rest []string) *wire.Response {
	_ = graph
	switch {
	case len(rest) == 1 && req.Method == wire.MethodPost:
		return s.insertEdge(req, rest[0])
	case len(rest) == 2:
		switch req.Method {
		case wire.MethodGet, wire.MethodHead:
			return s.readEdge(req, rest[0], rest[1])
		case wire.MethodPut:
			return s.writeEdge(req, rest[0], rest[1], false)
		case wire.MethodPatch:
			return s.writeEdge(req, rest[0], rest[1], true)
		case wire.MethodDelete:
			return s.removeEdge(req, rest[0], rest[1])
		}
	}
	return methodNotAllowed()
}

func (s *Server) insertEdge(req *wire.Request, coll string) *wire.Response {
	doc, resp := decodeDocument(req)
	if resp != nil {
		return resp
	}
	if resp := checkEndpoints(doc); resp != nil {
		return resp
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := s.edges[coll]
	if docs == nil {
		docs = make(map[string]map[string]any)
		s.edges[coll] = docs
	}
	key, _ := doc["_key"].(string)
	if key == "" {
		key = strconv.FormatUint(s.revision+1, 10)
	}
	if _, exists := docs[key]; exists {
		return errorResponse(http.StatusConflict, errorNumUniqueConstraint, "unique constraint violated")
	}
	doc["_key"] = key
	doc["_id"] = coll + "/" + key
	doc["_rev"] = s.nextRev()
	docs[key] = doc
	st := writeStatus(req)
	return jsonResponse(st, map[string]any{"error": false, "code": st, "edge": meta(doc, "")})
}

func (s *Server) readEdge(req *wire.Request, coll, key string) *wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, resp := s.lookup(req, coll, key)
	if resp != nil {
		if req.Method == wire.MethodHead {
			return &wire.Response{Status: resp.Status}
		}
		return resp
	}
	if req.Method == wire.MethodHead {
		return &wire.Response{Status: http.StatusOK, Header: map[string]string{"Etag": strconv.Quote(doc["_rev"].(string))}}
	}
	return jsonResponse(http.StatusOK, map[string]any{"error": false, "code": http.StatusOK, "edge": doc})
}

func (s *Server) writeEdge(req *wire.Request, coll, key string, merge bool) *wire.Response {
	in, resp := decodeDocument(req)
	if resp != nil {
		return resp
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old, resp := s.lookup(req, coll, key)
	if resp != nil {
		return resp
	}
	var doc map[string]any
	if merge {
		doc = maps.Clone(old)
		keepNull := req.Params["keepNull"] != "false"
		for k, v := range in {
			if v == nil && !keepNull {
				delete(doc, k)
				continue
			}
			doc[k] = v
		}
	} else {
		doc = in
	}
	if resp := checkEndpoints(doc); resp != nil {
		return resp
	}
	oldRev := old["_rev"].(string)
	doc["_key"] = key
	doc["_id"] = coll + "/" + key
	doc["_rev"] = s.nextRev()
	s.edges[coll][key] = doc
	st := writeStatus(req)
	return jsonResponse(st, map[string]any{"error": false, "code": st, "edge": meta(doc, oldRev)})
}

func (s *Server) removeEdge(req *wire.Request, coll, key string) *wire.Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, resp := s.lookup(req, coll, key); resp != nil {
		return resp
	}
	delete(s.edges[coll], key)
	st := writeStatus(req)
	return jsonResponse(st, map[string]any{"error": false, "code": st, "removed": true})
}

// lookup must be called with s.mu held.
func (s *Server) lookup(req *wire.Request, coll, key string) (map[string]any, *wire.Response) {
	doc, ok := s.edges[coll][key]
	if !ok {
		return nil, errorResponse(http.StatusNotFound, errorNumDocumentNotFound, "document not found")
	}
	if rev := header(req, "If-Match"); rev != "" && strings.Trim(rev, `"`) != doc["_rev"] {
		return nil, errorResponse(http.StatusPreconditionFailed, errorNumConflict, "precondition failed")
	}
	return doc, nil
}

// nextRev must be called with s.mu held.
func (s *Server) nextRev() string {
	s.revision++
	return "_" + strconv.FormatUint(s.revision, 36)
}

func decodeDocument(req *wire.Request) (map[string]any, *wire.Response) {
	var doc map[string]any
	if err := codec.JSON.Decode(req.Body, &doc); err != nil || doc == nil {
		return nil, errorResponse(http.StatusBadRequest, errorNumBadParameter, "request body is not a document")
	}
	delete(doc, "_id")
	delete(doc, "_rev")
	return doc, nil
}

func checkEndpoints(doc map[string]any) *wire.Response {
	for _, attr := range []string{"_from", "_to"} {
		if v, ok := doc[attr].(string); !ok || !strings.Contains(v, "/") {
			return errorResponse(http.StatusBadRequest, errorNumEdgeAttribute, "edge attribute missing or invalid")
		}
	}
	return nil
}

func meta(doc map[string]any, oldRev string) map[string]any {
	m := map[string]any{"_id": doc["_id"], "_key": doc["_key"], "_rev": doc["_rev"]}
	if oldRev != "" {
		m["_oldRev"] = oldRev
	}
	return m
}

func writeStatus(req *wire.Request) int {
	if req.Params["waitForSync"] == "true" {
		return http.StatusCreated
	}
	return http.StatusAccepted
}

func header(req *wire.Request, name string) string {
	for k, v := range req.Header {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}
