// gc2sim emulates a GC2 launch monitor over TCP for exercising the
// ingestion stack without hardware. It reproduces the sensor's USB
// texture: messages split into small chunks with per-chunk delays, an
// early incomplete reading before the final one, and 0M status frames.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type shotData struct {
	shotID    int
	speedMPH  float64
	launchDeg float64
	dirDeg    float64
	totalSpin float64
	backSpin  float64
	sideSpin  float64
}

func driverShot(id int) shotData {
	return shotData{
		shotID:    id,
		speedMPH:  155 + rand.Float64()*20,
		launchDeg: 9 + rand.Float64()*4,
		dirDeg:    -3 + rand.Float64()*6,
		totalSpin: 2200 + rand.Float64()*800,
		backSpin:  2000 + rand.Float64()*800,
		sideSpin:  -500 + rand.Float64()*1000,
	}
}

func sevenIronShot(id int) shotData {
	return shotData{
		shotID:    id,
		speedMPH:  115 + rand.Float64()*15,
		launchDeg: 15 + rand.Float64()*4,
		dirDeg:    -2 + rand.Float64()*4,
		totalSpin: 6000 + rand.Float64()*2000,
		backSpin:  5800 + rand.Float64()*2000,
		sideSpin:  -400 + rand.Float64()*800,
	}
}

func wedgeShot(id int) shotData {
	return shotData{
		shotID:    id,
		speedMPH:  85 + rand.Float64()*20,
		launchDeg: 28 + rand.Float64()*10,
		dirDeg:    -2 + rand.Float64()*4,
		totalSpin: 8000 + rand.Float64()*3000,
		backSpin:  7800 + rand.Float64()*3000,
		sideSpin:  -300 + rand.Float64()*600,
	}
}

// buildShotMessage renders a 0H frame the way the sensor does,
// including the bookkeeping keys a decoder must tolerate. An early
// reading omits the spin split.
func buildShotMessage(s shotData, msecSinceContact int, includeSpin bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "0H\nSHOT_ID=%d\nTIME_SEC=0\nMSEC_SINCE_CONTACT=%d\n", s.shotID, msecSinceContact)
	fmt.Fprintf(&b, "SPEED_MPH=%.2f\nAZIMUTH_DEG=%.2f\nELEVATION_DEG=%.2f\nSPIN_RPM=%.0f\n",
		s.speedMPH, s.dirDeg, s.launchDeg, s.totalSpin)
	if includeSpin {
		fmt.Fprintf(&b, "BACK_RPM=%.0f\nSIDE_RPM=%.0f\n", s.backSpin, s.sideSpin)
	}
	b.WriteString("IS_LEFT=0\nWORLDSTART_X=-53.53\nWORLDSTART_Y=91.40\nWORLDSTART_Z=-477.94\nHMT=0")
	b.WriteString("\n\t")
	return b.String()
}

func buildStatusMessage(flags, balls int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "0M\nFLAGS=%d\nBALLS=%d", flags, balls)
	if balls > 0 {
		b.WriteString("\nBALL1=198,206,12")
	}
	b.WriteString("\n\t")
	return b.String()
}

type emulator struct {
	packetSize    int
	packetDelay   time.Duration
	readingGap    time.Duration
	earlyReadings bool

	mu      sync.Mutex
	clients []net.Conn
	shotID  int
}

func (e *emulator) addClient(conn net.Conn) {
	e.mu.Lock()
	e.clients = append(e.clients, conn)
	e.mu.Unlock()
	fmt.Printf("client connected: %s\n", conn.RemoteAddr())

	// A real sensor announces itself immediately.
	e.sendTo(conn, buildStatusMessage(7, 1))
}

func (e *emulator) removeClient(conn net.Conn) {
	e.mu.Lock()
	for i, c := range e.clients {
		if c == conn {
			e.clients = append(e.clients[:i], e.clients[i+1:]...)
			break
		}
	}
	e.mu.Unlock()
	conn.Close()
}

func (e *emulator) snapshot() []net.Conn {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]net.Conn(nil), e.clients...)
}

// sendTo writes a message in packet-size chunks with the configured
// inter-chunk delay, mimicking USB interrupt transfers.
func (e *emulator) sendTo(conn net.Conn, message string) {
	data := []byte(message)
	for offset := 0; offset < len(data); offset += e.packetSize {
		end := offset + e.packetSize
		if end > len(data) {
			end = len(data)
		}
		if _, err := conn.Write(data[offset:end]); err != nil {
			fmt.Fprintf(os.Stderr, "write to %s failed: %v\n", conn.RemoteAddr(), err)
			return
		}
		if end < len(data) {
			time.Sleep(e.packetDelay)
		}
	}
}

func (e *emulator) fireShot(kind string) {
	clients := e.snapshot()
	if len(clients) == 0 {
		fmt.Println("no clients connected")
		return
	}

	e.mu.Lock()
	e.shotID++
	id := e.shotID
	e.mu.Unlock()

	var shot shotData
	switch kind {
	case "7iron":
		shot = sevenIronShot(id)
	case "wedge":
		shot = wedgeShot(id)
	default:
		shot = driverShot(id)
	}

	fmt.Printf("firing %s shot #%d: %.1f mph, launch %.1f, spin %.0f rpm\n",
		kind, id, shot.speedMPH, shot.launchDeg, shot.totalSpin)

	for _, conn := range clients {
		if e.earlyReadings {
			e.sendTo(conn, buildShotMessage(shot, 200, false))
			time.Sleep(e.readingGap)
		}
		e.sendTo(conn, buildShotMessage(shot, 1000, true))
	}
}

func (e *emulator) sendStatus(ready, ball bool) {
	flags := 1
	if ready {
		flags = 7
	}
	balls := 0
	if ball {
		balls = 1
	}
	for _, conn := range e.snapshot() {
		e.sendTo(conn, buildStatusMessage(flags, balls))
	}
}

func main() {
	port := flag.Int("port", 5555, "TCP port to listen on")
	packetSize := flag.Int("packet-size", 64, "bytes per emitted chunk")
	packetDelay := flag.Duration("packet-delay", 1500*time.Microsecond, "delay between chunks")
	readingGap := flag.Duration("reading-gap", 800*time.Millisecond, "gap between early and final reading")
	earlyReadings := flag.Bool("early-readings", true, "send an incomplete early reading before the final one")
	flag.Parse()

	e := &emulator{
		packetSize:    *packetSize,
		packetDelay:   *packetDelay,
		readingGap:    *readingGap,
		earlyReadings: *earlyReadings,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", *port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("gc2sim listening on port %d\n", *port)
	fmt.Println("commands: driver | 7iron | wedge | status | burst N | quit")

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			e.addClient(conn)
			go func(c net.Conn) {
				// Drain and detect disconnect; the sensor ignores input.
				buf := make([]byte, 256)
				for {
					if _, err := c.Read(buf); err != nil {
						e.removeClient(c)
						fmt.Printf("client disconnected: %s\n", c.RemoteAddr())
						return
					}
				}
			}(conn)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		fields := strings.Fields(strings.ToLower(scanner.Text()))
		if len(fields) == 0 {
			fmt.Print("> ")
			continue
		}
		switch fields[0] {
		case "quit", "q":
			ln.Close()
			return
		case "driver", "d":
			e.fireShot("driver")
		case "7iron", "7":
			e.fireShot("7iron")
		case "wedge", "w":
			e.fireShot("wedge")
		case "status", "s":
			e.sendStatus(true, true)
		case "burst":
			count := 5
			if len(fields) > 1 {
				if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
					count = n
				}
			}
			for i := 0; i < count; i++ {
				e.fireShot("driver")
				time.Sleep(500 * time.Millisecond)
			}
		default:
			fmt.Printf("unknown command %q\n", fields[0])
		}
		fmt.Print("> ")
	}
}
