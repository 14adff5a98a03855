package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/websocket"

	"github.com/masa-finance/timeline-worker/api/types"
	"github.com/masa-finance/timeline-worker/internal/jobs"
	"github.com/masa-finance/timeline-worker/internal/jobs/stats"
	"github.com/masa-finance/timeline-worker/internal/jobserver"
	"github.com/masa-finance/timeline-worker/internal/timeline"
)

var (
	errExpectedStart  = errors.New("first message must be a start command")
	errAlreadyRunning = errors.New("a run is already in progress on this connection")
)

// session is one attended run. Each websocket connection owns exactly one,
// together with the RunControl its commands act on.
type session struct {
	id      string
	conn    *websocket.Conn
	control *jobs.RunControl
	writeMu sync.Mutex
	log     *logrus.Entry
}

func (s *session) emit(ev types.StreamEvent) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	ev.SessionID = s.id
	return websocket.JSON.Send(s.conn, ev)
}

func (s *session) fail(err error) {
	if sendErr := s.emit(types.StreamEvent{Type: types.EventError, Message: err.Error()}); sendErr != nil {
		s.log.WithError(sendErr).Debug("Could not report error to client")
	}
}

// stream serves GET /stream. The client opens the socket, sends a start
// command, and then receives progress events until the run completes or
// fails. pause, resume and cancel commands may be sent at any time; they take
// effect at the next page boundary and are acknowledged immediately.
func stream(ctx context.Context, orchestrator *jobs.Orchestrator, defaultCredential string) echo.HandlerFunc {
	return func(c echo.Context) error {
		server := websocket.Server{
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()
				s := &session{
					id:      uuid.New().String(),
					conn:    conn,
					control: jobs.NewRunControl(),
				}
				s.log = logrus.WithField("session_id", s.id)
				s.serve(ctx, orchestrator, defaultCredential)
			},
		}
		server.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

func (s *session) serve(ctx context.Context, orchestrator *jobs.Orchestrator, defaultCredential string) {
	var start types.StreamCommand
	if err := websocket.JSON.Receive(s.conn, &start); err != nil {
		s.log.WithError(err).Debug("Connection closed before start")
		return
	}
	req, err := runRequest(start, defaultCredential)
	if err != nil {
		s.fail(err)
		return
	}
	req.Dedup = timeline.NewDedupIndex()

	if err := s.emit(types.StreamEvent{Type: types.EventStarted, Message: req.Target}); err != nil {
		return
	}
	s.log = s.log.WithField("target", req.Target)
	s.log.Info("Realtime run started")

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		s.readCommands()
	}()

	sink := jobs.NewRealtimeSink(s.emit, req.Dedup)
	if _, err := orchestrator.Run(ctx, req, sink, s.control); err != nil {
		s.log.WithError(err).Info("Realtime run ended with error")
	}

	// Unblocks the reader.
	s.conn.Close()
	<-readerDone
}

// readCommands applies control commands until the connection goes away. A
// client that disconnects cancels its run.
func (s *session) readCommands() {
	for {
		var cmd types.StreamCommand
		if err := websocket.JSON.Receive(s.conn, &cmd); err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.WithError(err).Debug("Stopped reading commands")
			}
			s.control.Cancel()
			return
		}

		switch cmd.Action {
		case types.CommandPause:
			if s.control.Pause() {
				s.log.Info("Run paused")
			}
			s.ack(types.EventPaused)
		case types.CommandResume:
			if s.control.Resume() {
				s.log.Info("Run resumed")
			}
			s.ack(types.EventResumed)
		case types.CommandCancel:
			s.log.Info("Run cancel requested")
			s.control.Cancel()
		case types.CommandStart:
			s.fail(errAlreadyRunning)
		default:
			s.fail(fmt.Errorf("unknown command %q", cmd.Action))
		}
	}
}

func (s *session) ack(t types.EventType) {
	if err := s.emit(types.StreamEvent{Type: t}); err != nil {
		s.log.WithError(err).Debug("Could not acknowledge command")
	}
}

func runRequest(cmd types.StreamCommand, defaultCredential string) (jobs.RunRequest, error) {
	if cmd.Action != types.CommandStart {
		return jobs.RunRequest{}, errExpectedStart
	}
	target := timeline.NormalizeTarget(cmd.Target)
	if target == "" {
		return jobs.RunRequest{}, jobserver.ErrEmptyTarget
	}
	var filter types.FilterConfig
	if cmd.Filter != nil {
		filter = *cmd.Filter
	}
	if err := filter.Validate(); err != nil {
		return jobs.RunRequest{}, err
	}
	credential := cmd.Credential
	if credential == "" {
		credential = defaultCredential
	}
	return jobs.RunRequest{
		Target:     target,
		Filter:     filter,
		Credential: credential,
		Origin:     stats.OriginRealtime,
	}, nil
}
