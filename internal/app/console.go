package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/relabs-tech/wiicon_remote/internal/orientation"
	"github.com/relabs-tech/wiicon_remote/internal/osc"
)

// consoleReadTimeout bounds how long a read blocks before ctx is rechecked.
const consoleReadTimeout = 250 * time.Millisecond

// PacketSource is the subset of *net.UDPConn the console reads from.
type PacketSource interface {
	ReadFromUDP(b []byte) (n int, addr *net.UDPAddr, err error)
	SetReadDeadline(t time.Time) error
}

// ListenOSC opens the UDP port the console listens on.
func ListenOSC(port int) (*net.UDPConn, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("listen udp :%d: %w", port, err)
	}
	return conn, nil
}

// RunConsole prints every Euler frame received on src as a pose line.
// Frames for other addresses or with the wrong argument count are logged at debug level.
func RunConsole(ctx context.Context, src PacketSource, address string, out io.Writer) error {
	buf := make([]byte, 2048)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := src.SetReadDeadline(time.Now().Add(consoleReadTimeout)); err != nil {
			return fmt.Errorf("console: set deadline: %w", err)
		}

		n, from, err := src.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("console: read: %w", err)
		}

		msg, err := osc.Decode(buf[:n])
		if err != nil {
			log.Debugf("console: dropping packet from %s: %v", from, err)
			continue
		}
		if msg.Address != address || len(msg.Args) != 3 {
			log.Debugf("console: ignoring %s with %d args from %s", msg.Address, len(msg.Args), from)
			continue
		}

		p := orientation.Pose{Roll: float64(msg.Args[0]), Pitch: float64(msg.Args[1]), Yaw: float64(msg.Args[2])}
		if !p.IsFinite() {
			log.Debugf("console: non-finite pose from %s", from)
			continue
		}
		PrintPose(out, "OSC ", p)
	}
}

// PrintPose writes one console line for p.
func PrintPose(out io.Writer, tag string, p orientation.Pose) {
	fmt.Fprintf(out, "[%s] ROLL=%7.2f  PITCH=%7.2f  YAW=%7.2f\n", tag, p.Roll, p.Pitch, p.Yaw)
}
