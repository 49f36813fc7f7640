// Package tcplistener provides a TCP input which submits each incoming line as one record
package tcplistener

import (
	"io"
	"net"
	"sync"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/slog-relay/defs"
	"github.com/relex/slog-relay/hook"
	"github.com/relex/slog-relay/util"
)

// TCPLineListener is a TCP Listener for line-based, request-only text protocol
//
// - Incoming bytes are buffered until a complete line is received, and then submitted without the newline.
//
// - The incomplete line at the end of connection is submitted when the connection is closed.
//
// There is no request confirmation. A record is only safe after Submit returns, i.e. after it's buffered.
type TCPLineListener struct {
	logger        logger.Logger
	socket        *net.TCPListener
	submitter     hook.Submitter
	maxLineLength int
	stopRequest   channels.Awaitable
	taskCounter   *sync.WaitGroup    // counter to track connection tasks and the listener task itself
	stopped       channels.Awaitable // stopped is signaled when both listener and all child connections have come to stop
}

// NewTCPLineListener creates a socket listening on the given TCP address and returns a new TCPLineListener if successful
//
// The given address may use port zero, which would cause the port to be assigned by OS
//
// Returns the listener, actual address including final port, and error if failed
func NewTCPLineListener(parentLogger logger.Logger, address string, submitter hook.Submitter, maxLineLength int,
	stopRequest channels.Awaitable) (*TCPLineListener, string, error) {

	socket, err := net.Listen("tcp", address)
	if err != nil {
		return nil, "", err
	}
	boundAddr := socket.Addr().String()

	lsnrLogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "TCPLineListener",
		defs.LabelAddress:   boundAddr,
	})
	lsnrLogger.Info("start listening")

	// init taskCounter with 1 for the listener; WaitGroupAwaitable below would quit immediately if it's zero.
	taskCounter := &sync.WaitGroup{}
	taskCounter.Add(1)

	return &TCPLineListener{
		logger:        lsnrLogger,
		socket:        socket.(*net.TCPListener),
		submitter:     submitter,
		maxLineLength: maxLineLength,
		stopRequest:   stopRequest,
		taskCounter:   taskCounter,
		stopped:       channels.NewWaitGroupAwaitable(taskCounter),
	}, boundAddr, nil
}

// Start launches the accept loop in background
func (lsnr *TCPLineListener) Start() {
	go lsnr.run()
}

// Stopped returns an Awaitable which is signaled when the listener and all connections have been closed
func (lsnr *TCPLineListener) Stopped() channels.Awaitable {
	return lsnr.stopped
}

func (lsnr *TCPLineListener) run() {
	// background goroutine to wait and close listener on request
	abortListener := channels.NewSignalAwaitable()
	go func() {
		channels.AnyAwaitables(lsnr.stopRequest, abortListener).Next(func() {
			if abortListener.Peek() {
				lsnr.logger.Info("abort listener")
			} else {
				lsnr.logger.Info("close listener on stop request")
			}
		}).WaitForever()
		lsnr.socket.Close()
	}()

	lsnr.logger.Info("start accept loop")
	for {
		conn, err := lsnr.socket.AcceptTCP()
		if err != nil {
			if lsnr.stopRequest.Peek() && util.IsNetworkClosed(err) {
				// closed on stop request
			} else {
				lsnr.logger.Error("accept() error: ", err)
				abortListener.Signal()
			}
			break
		}

		connLogger := lsnr.logger.WithFields(logger.Fields{
			defs.LabelPart:   "connection",
			defs.LabelClient: conn.RemoteAddr().String(),
		})
		connLogger.Info("accepted connection")
		lsnr.taskCounter.Add(1)
		go lsnr.runConnection(connLogger, conn)
	}
	lsnr.logger.Info("end accept loop")

	// mark the listener itself as done, note there could still be established connections
	lsnr.taskCounter.Done()
}

func (lsnr *TCPLineListener) runConnection(connLogger logger.Logger, conn *net.TCPConn) {
	defer lsnr.taskCounter.Done()

	if err := conn.SetKeepAlive(true); err != nil {
		connLogger.Warnf("error enabling keep-alive: %s", err.Error())
	}
	connAborter := lsnr.launchConnectionCloser(connLogger, conn)

	writer := hook.NewLineWriter(lsnr.submitter, lsnr.maxLineLength)
	_, err := io.Copy(writer, conn)
	switch {
	case err == nil:
		connLogger.Info("closed by client")
	case util.IsNetworkClosed(err) && lsnr.stopRequest.Peek():
		connLogger.Info("closed by stop request")
	case util.IsNetworkError(err):
		connLogger.Warn("read() error: ", err)
	default:
		connLogger.Error("failed to submit: ", err)
	}
	if cerr := writer.Close(); cerr != nil {
		connLogger.Error("failed to submit the last line: ", cerr)
	}
	connAborter.Signal()
	connLogger.Info("ended")
}

func (lsnr *TCPLineListener) launchConnectionCloser(connLogger logger.Logger, conn *net.TCPConn) *channels.SignalAwaitable {
	abortConn := channels.NewSignalAwaitable()
	// background goroutine to wait and close connection on request or at the end
	go func() {
		channels.AnyAwaitables(lsnr.stopRequest, abortConn).Next(func() {
			if !abortConn.Peek() {
				connLogger.Info("close connection on stop request")
			}
		}).WaitForever()
		conn.Close()
	}()
	return abortConn
}
