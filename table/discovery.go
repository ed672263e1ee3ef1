package table

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
)

// Registrar receives discovered robot base URLs.
type Registrar interface {
	RegisterRobot(url string)
}

// announcement is the discovery datagram the table broadcasts on boot
// and periodically afterwards.
type announcement struct {
	Type string `json:"type"`
	Port int    `json:"port"`
}

// Discovery listens for UDP announce broadcasts from the table and
// registers its control URL. The URL host comes from the packet's source
// address; the port comes from the payload.
type Discovery struct {
	port      int
	registrar Registrar
	conn      *net.UDPConn
}

func NewDiscovery(port int, registrar Registrar) *Discovery {
	return &Discovery{port: port, registrar: registrar}
}

// Start binds the UDP port and begins processing announcements.
func (d *Discovery) Start() error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: d.port})
	if err != nil {
		return fmt.Errorf("discovery listen :%d: %w", d.port, err)
	}
	d.conn = conn
	log.Printf("discovery: listening for announcements on udp :%d", d.port)
	go d.loop()
	return nil
}

// Stop closes the socket, which ends the read loop.
func (d *Discovery) Stop() {
	if d.conn != nil {
		d.conn.Close()
	}
}

func (d *Discovery) loop() {
	buf := make([]byte, 2048)
	for {
		n, addr, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			// Closed socket means shutdown.
			return
		}
		d.handlePacket(buf[:n], addr)
	}
}

func (d *Discovery) handlePacket(data []byte, addr *net.UDPAddr) {
	var ann announcement
	if err := json.Unmarshal(data, &ann); err != nil {
		log.Printf("discovery: bad packet from %s: %v", addr, err)
		return
	}
	if ann.Type != "announce" || ann.Port <= 0 || ann.Port > 65535 {
		return
	}
	url := fmt.Sprintf("http://%s:%d", addr.IP.String(), ann.Port)
	d.registrar.RegisterRobot(url)
}
