// Package service exposes a read-only HTTP API over a running Drift node:
// stats, connected peers, cached facts and the story lock.
package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/driftnetworks/drift/src/node"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServeMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServeMux. In which case, the handlers will
// be accessible from both servers. This is useful when Drift is used
// in-memory and expected to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Drift API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	http.HandleFunc("/facts", s.makeHandler(s.GetFacts))
	http.HandleFunc("/lock", s.makeHandler(s.GetLock))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary
// to call Serve when Drift is used in-memory and another server has already
// been started with the DefaultServeMux and the same address:port
// combination. Indeed, Drift API handlers have already been registered when
// the service was instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Drift API")

	// Use the DefaultServeMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.node.Stats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// peerInfo is the wire form of one entry of the /peers endpoint.
type peerInfo struct {
	Addr    string  `json:"addr"`
	GUID    uint64  `json:"guid"`
	Name    string  `json:"name"`
	StateID uint64  `json:"state_id"`
	PosX    float64 `json:"pos_x"`
	PosY    float64 `json:"pos_y"`
	PosZ    float64 `json:"pos_z"`
}

// GetPeers returns the authenticated peers and their last reported position.
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	sessions := s.node.Sessions().Authenticated()

	out := make([]peerInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, peerInfo{
			Addr:    sess.Addr,
			GUID:    sess.GUID,
			Name:    sess.Name,
			StateID: sess.StateID,
			PosX:    sess.Pose.Position.X,
			PosY:    sess.Pose.Position.Y,
			PosZ:    sess.Pose.Position.Z,
		})
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(out)
}

// GetFacts returns the cached world facts.
func (s *Service) GetFacts(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(s.node.Narrative().Facts())
}

// lockInfo is the wire form of the /lock endpoint.
type lockInfo struct {
	Locked     bool   `json:"locked"`
	HolderGUID uint64 `json:"holder_guid,omitempty"`
	SceneID    uint32 `json:"scene_id,omitempty"`
}

// GetLock returns the current story lock state.
func (s *Service) GetLock(w http.ResponseWriter, r *http.Request) {
	holder, scene, locked := s.node.Narrative().Holder()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(lockInfo{
		Locked:     locked,
		HolderGUID: holder,
		SceneID:    scene,
	})
}
