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

// AcceptDecision is supplied by the caller (UI/daemon/CLI) once it has
// presented the incoming file_offer to the user.
type AcceptDecision struct {
	Accept bool
}

// Receiver drives the receiving half of the file-offer/accept/chunk/verify
// protocol on behalf of one session.
type Receiver struct {
	sess      *Session
	transport Transport
	sessKey   []byte
	bus       *ProgressBus
	log       *observability.Logger
	metrics   *observability.Metrics
	saveDir   string

	// decide is called once per session after the file_offer has been
	// published on bus, and must return the accept/decline decision. The
	// daemon/CLI wires this to its own prompt or AcceptTransfer RPC.
	decide func(files []framing.FileInfo) (bool, error)
}

// NewReceiver constructs a Receiver that writes accepted files beneath
// saveDir, asking decide for the accept/decline verdict once the offer
// arrives. metrics may be nil.
func NewReceiver(sess *Session, transport Transport, sessionKey []byte, bus *ProgressBus, log *observability.Logger, metrics *observability.Metrics, saveDir string, decide func([]framing.FileInfo) (bool, error)) *Receiver {
	return &Receiver{sess: sess, transport: transport, sessKey: sessionKey, bus: bus, log: log, metrics: metrics, saveDir: saveDir, decide: decide}
}

// Run executes the full receiver pipeline described in §4.10.
func (r *Receiver) Run() error {
	r.sess.SetState(StateTransferring)
	r.bus.Publish(ProgressEvent{Kind: EventStateChanged, State: StateTransferring})

	offer, err := r.transport.RecvPeerMessage()
	if err != nil {
		return err
	}
	if offer.Type != framing.TypeFileOffer {
		return errTransfer(fmt.Sprintf("expected file_offer, got %q", offer.Type))
	}

	offered := make([]FileOffered, len(offer.Files))
	for i, f := range offer.Files {
		offered[i] = FileOffered{Name: f.Name, Size: f.Size}
	}
	r.bus.Publish(ProgressEvent{Kind: EventFileOffer, SessionID: r.sess.ID, Files: offered})

	accept, err := r.decide(offer.Files)
	if err != nil {
		return err
	}
	if !accept {
		_ = r.transport.SendPeerMessage(framing.NewFileDecline())
		r.sess.SetState(StateCancelled)
		return errCancelled()
	}
	if err := r.transport.SendPeerMessage(framing.NewFileAccept()); err != nil {
		return err
	}

	var totalBytes int64
	for _, f := range offer.Files {
		totalBytes += int64(f.Size)
	}
	tracker := NewProgressTracker(totalBytes)
	var receivedBytes int64

	for idx, f := range offer.Files {
		if err := r.receiveFile(uint16(idx), f, tracker, &receivedBytes); err != nil {
			return err
		}
	}

	final, err := r.transport.RecvPeerMessage()
	if err != nil {
		return err
	}
	if final.Type != framing.TypeTransferComplete {
		return errTransfer(fmt.Sprintf("expected transfer_complete, got %q", final.Type))
	}

	r.sess.SetState(StateCompleted)
	r.bus.Publish(ProgressEvent{
		Kind:            EventTransferComplete,
		DurationSeconds: tracker.Elapsed().Seconds(),
		AverageSpeed:    tracker.AverageSpeed(),
		TotalBytes:      totalBytes,
		FileCount:       len(offer.Files),
	})
	return nil
}

// receiveFile resolves the destination path for one offered file, streams
// its chunks into a Reassembler, and completes the file_complete /
// file_verified handshake.
func (r *Receiver) receiveFile(index uint16, info framing.FileInfo, tracker *ProgressTracker, receivedBytes *int64) error {
	flog := r.log.WithFile(info.Name, int64(info.Size))

	destPath, err := r.resolveDestPath(info)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return errNetwork("create destination directory", err)
	}

	asm, err := chunker.Create(destPath, r.sessKey)
	if err != nil {
		return errNetwork("create destination file", err)
	}
	flog.Debug("writing to " + destPath)

	for {
		select {
		case <-r.sess.Cancel.Done():
			asm.Abort()
			_ = r.transport.SendPeerMessage(framing.NewCancel("receiver cancelled"))
			return errCancelled()
		default:
		}

		msg, err := r.transport.RecvPeerMessage()
		if err != nil {
			asm.Abort()
			return err
		}

		switch msg.Type {
		case framing.TypeFileChunk:
			if int(msg.FileIndex) != int(index) {
				asm.Abort()
				return errTransfer(fmt.Sprintf("file_chunk index %d out of range for current file %d", msg.FileIndex, index))
			}
			if err := asm.WriteChunk(msg.Data, msg.Nonce12()); err != nil {
				asm.Abort()
				return errCrypto("decrypt chunk", err)
			}
			if r.metrics != nil {
				r.metrics.RecordChunkReceived(len(msg.Data))
			}
			plaintext := len(msg.Data)
			if plaintext >= 16 {
				plaintext -= 16
			}
			*receivedBytes += int64(plaintext)
			tracker.Update(*receivedBytes)
			r.bus.Publish(ProgressEvent{
				Kind:             EventTransferProgress,
				BytesTransferred: *receivedBytes,
				BytesTotal:       tracker.bytesTotal,
				SpeedBps:         tracker.SpeedBps(),
				ETASeconds:       tracker.ETASeconds(),
				CurrentFile:      info.Name,
				Percent:          tracker.Percent(),
			})

		case framing.TypeFileComplete:
			if int(msg.FileIndex) != int(index) {
				asm.Abort()
				return errTransfer(fmt.Sprintf("file_complete index %d out of range for current file %d", msg.FileIndex, index))
			}
			if err := asm.Verify(msg.SHA256Array()); err != nil {
				asm.Abort()
				if r.metrics != nil {
					r.metrics.RecordChecksumVerification(false)
				}
				_ = r.transport.SendPeerMessage(framing.NewCancel("checksum mismatch"))
				return errChecksumMismatch(fmt.Sprintf("file %q failed integrity check", info.Name), err)
			}
			if r.metrics != nil {
				r.metrics.RecordChecksumVerification(true)
			}
			if err := r.transport.SendPeerMessage(framing.NewFileVerified(index)); err != nil {
				return err
			}
			r.bus.Publish(ProgressEvent{Kind: EventFileCompleted, Name: info.Name})
			return nil

		case framing.TypeCancel:
			asm.Abort()
			return newErr(KindTransfer, fmt.Sprintf("peer cancelled: %s", msg.Reason), nil)

		default:
			asm.Abort()
			return errTransfer(fmt.Sprintf("unexpected message %q mid-file", msg.Type))
		}
	}
}

// resolveDestPath sanitizes info's name/relative_path into a path beneath
// saveDir, guaranteeing the result can never escape it.
func (r *Receiver) resolveDestPath(info framing.FileInfo) (string, error) {
	if info.RelativePath != nil {
		safe, err := validation.SanitizeRelativePath(*info.RelativePath)
		if err != nil {
			return "", errTransfer(fmt.Sprintf("unsafe relative_path %q: %v", *info.RelativePath, err))
		}
		return filepath.Join(r.saveDir, safe), nil
	}
	name := validation.SanitizeFlatName(info.Name)
	return filepath.Join(r.saveDir, name), nil
}
