package engine

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/quantarax/relay/internal/chunker"
	"github.com/quantarax/relay/internal/framing"
	"github.com/quantarax/relay/internal/observability"
	"github.com/quantarax/relay/internal/validation"
)

// SendFile is one input to a send session: the path to read from disk and
// the FileInfo describing it on the wire (RelativePath set for folder
// transfers, nil for a flat file argument).
type SendFile struct {
	AbsolutePath string
	Info         framing.FileInfo
}

// Sender drives the file-offer/accept/chunk/verify/complete protocol over
// an already-established Transport, on behalf of one session.
type Sender struct {
	sess      *Session
	transport Transport
	sessKey   []byte
	bus       *ProgressBus
	log       *observability.Logger
	metrics   *observability.Metrics
	files     []SendFile
}

// NewSender constructs a Sender for files, which must already be expanded
// (see validation.ExpandPaths) and ordered the same way as the FileInfo
// list placed in the outgoing file_offer. metrics may be nil.
func NewSender(sess *Session, transport Transport, sessionKey []byte, bus *ProgressBus, log *observability.Logger, metrics *observability.Metrics, files []SendFile) *Sender {
	return &Sender{sess: sess, transport: transport, sessKey: sessionKey, bus: bus, log: log, metrics: metrics, files: files}
}

// Run executes the full sender pipeline described in §4.9: offer, wait for
// accept, stream every file's chunks, and signal completion.
func (s *Sender) Run() error {
	s.sess.SetState(StateTransferring)
	s.bus.Publish(ProgressEvent{Kind: EventStateChanged, State: StateTransferring})

	infos := make([]framing.FileInfo, len(s.files))
	for i, f := range s.files {
		infos[i] = f.Info
	}
	if err := s.transport.SendPeerMessage(framing.NewFileOffer(infos)); err != nil {
		return err
	}

	reply, err := s.transport.RecvPeerMessage()
	if err != nil {
		return err
	}
	switch reply.Type {
	case framing.TypeFileAccept:
		// continue
	case framing.TypeFileDecline:
		return errPeerRejected("peer declined the transfer")
	default:
		return errTransfer(fmt.Sprintf("expected file_accept or file_decline, got %q", reply.Type))
	}

	var totalBytes int64
	for _, f := range s.files {
		totalBytes += int64(f.Info.Size)
	}
	tracker := NewProgressTracker(totalBytes)
	var sentBytes int64

	for idx, f := range s.files {
		if err := s.sendFile(uint16(idx), f, tracker, &sentBytes); err != nil {
			return err
		}
	}

	if err := s.transport.SendPeerMessage(framing.NewTransferComplete()); err != nil {
		return err
	}
	if err := s.transport.FinishSend(); err != nil {
		return err
	}

	s.sess.SetState(StateCompleted)
	s.bus.Publish(ProgressEvent{
		Kind:            EventTransferComplete,
		DurationSeconds: tracker.Elapsed().Seconds(),
		AverageSpeed:    tracker.AverageSpeed(),
		TotalBytes:      totalBytes,
		FileCount:       len(s.files),
	})
	return nil
}

// sendFile streams one file's chunks, then exchanges file_complete /
// file_verified for it.
func (s *Sender) sendFile(index uint16, f SendFile, tracker *ProgressTracker, sentBytes *int64) error {
	flog := s.log.WithFile(f.Info.Name, int64(f.Info.Size))

	c, err := chunker.Open(f.AbsolutePath, s.sessKey)
	if err != nil {
		return errNetwork("open file for sending", err)
	}
	flog.Debug("streaming chunks")

	for {
		select {
		case <-s.sess.Cancel.Done():
			_ = s.transport.SendPeerMessage(framing.NewCancel("sender cancelled"))
			return errCancelled()
		default:
		}

		chunk, ok, err := c.Next()
		if err != nil {
			return errNetwork("read chunk", err)
		}
		if !ok {
			break
		}

		msg := framing.NewFileChunk(index, chunk.Index, chunk.Ciphertext, chunk.Nonce)
		if err := s.transport.SendPeerMessage(msg); err != nil {
			return err
		}

		if s.metrics != nil {
			s.metrics.RecordChunkSent(len(chunk.Ciphertext))
		}
		*sentBytes += int64(len(chunk.Ciphertext))
		tracker.Update(*sentBytes)
		s.bus.Publish(ProgressEvent{
			Kind:             EventTransferProgress,
			BytesTransferred: *sentBytes,
			BytesTotal:       tracker.bytesTotal,
			SpeedBps:         tracker.SpeedBps(),
			ETASeconds:       tracker.ETASeconds(),
			CurrentFile:      f.Info.Name,
			Percent:          tracker.Percent(),
		})
	}

	digest, err := c.Finalize()
	if err != nil {
		return errNetwork("finalize chunked read", err)
	}
	flog.Debug(fmt.Sprintf("sha256 %x", digest))
	if err := s.transport.SendPeerMessage(framing.NewFileComplete(index, digest)); err != nil {
		return err
	}

	resp, err := s.transport.RecvPeerMessage()
	if err != nil {
		return err
	}
	switch resp.Type {
	case framing.TypeFileVerified:
		s.bus.Publish(ProgressEvent{Kind: EventFileCompleted, Name: f.Info.Name})
		return nil
	case framing.TypeCancel:
		return newErr(KindTransfer, fmt.Sprintf("peer cancelled: %s", resp.Reason), nil)
	default:
		return errTransfer(fmt.Sprintf("expected file_verified, got %q", resp.Type))
	}
}

// BuildFileInfos converts expanded sender inputs into the FileInfo list sent
// in the file_offer message, sanitizing each flat (non-folder) name the way
// a well-behaved sender would before even offering it.
func BuildFileInfos(expanded []validation.ExpandedFile) ([]SendFile, error) {
	out := make([]SendFile, 0, len(expanded))
	for _, e := range expanded {
		size, err := fileSize(e.AbsolutePath)
		if err != nil {
			return nil, err
		}
		info := framing.FileInfo{Size: uint64(size)}
		if e.RelativePath != nil {
			rp := *e.RelativePath
			info.Name = filepath.Base(rp)
			info.RelativePath = &rp
		} else {
			info.Name = validation.SanitizeFlatName(filepath.Base(e.AbsolutePath))
		}
		out = append(out, SendFile{AbsolutePath: e.AbsolutePath, Info: info})
	}
	return out, nil
}

// fileSize stats path and returns its size in bytes.
func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, errNetwork("stat file", err)
	}
	return info.Size(), nil
}
