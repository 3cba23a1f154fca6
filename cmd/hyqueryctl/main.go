// Command hyqueryctl queries a running server from the command line. It
// speaks both protocol generations and is the tool we reach for when
// checking a deployment by hand.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"hyquery/pkg/protocol"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:5520", "server address")
	mode := flag.String("mode", "basic", "query mode: v1, v1full, basic, players")
	family := flag.String("family", "hyquery2", "V2 magic family: hyquery2 or onequery")
	token := flag.String("token", "", "auth token for protected endpoints")
	offset := flag.Uint("offset", 0, "player list offset for -mode players")
	wantAddr := flag.Bool("address", false, "request the public address in basic responses")
	timeout := flag.Duration("timeout", 3*time.Second, "per-request timeout")
	flag.Parse()

	conn, err := net.Dial("udp", *addr)
	if err != nil {
		fatalf("dial %s: %v", *addr, err)
	}
	defer conn.Close()
	c := &client{conn: conn, timeout: *timeout}

	switch *mode {
	case "v1":
		err = c.queryV1(protocol.V1TypeBasic)
	case "v1full":
		err = c.queryV1(protocol.V1TypeFull)
	case "basic", "players":
		fam := protocol.FamilyHyQuery2
		if *family == "onequery" {
			fam = protocol.FamilyOneQuery
		}
		err = c.queryV2(fam, *mode, []byte(*token), uint32(*offset), *wantAddr)
	default:
		fatalf("unknown mode %q", *mode)
	}
	if err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

type client struct {
	conn    net.Conn
	timeout time.Duration
}

func (c *client) roundTrip(req []byte) ([]byte, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, err
	}
	if _, err := c.conn.Write(req); err != nil {
		return nil, err
	}
	buf := make([]byte, 65535)
	n, err := c.conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func (c *client) queryV1(queryType byte) error {
	req := append(append([]byte(nil), protocol.MagicV1Request...), queryType)
	raw, err := c.roundTrip(req)
	if err != nil {
		return err
	}
	resp, err := protocol.ParseV1Response(raw)
	if err != nil {
		return err
	}

	fmt.Printf("server:  %s\n", resp.Name)
	fmt.Printf("motd:    %s\n", resp.MOTD)
	fmt.Printf("players: %d/%d\n", resp.Online, resp.Max)
	fmt.Printf("port:    %d\n", resp.Port)
	fmt.Printf("version: %s\n", resp.Version)
	if queryType != protocol.V1TypeFull {
		return nil
	}
	for _, p := range resp.Players {
		if p.ServerID != "" {
			fmt.Printf("  player %s (%s) @ %s\n", p.Username, p.UUID, p.ServerID)
		} else {
			fmt.Printf("  player %s (%s)\n", p.Username, p.UUID)
		}
	}
	for _, pl := range resp.Plugins {
		fmt.Printf("  plugin %s\n", pl)
	}
	for _, r := range resp.RemoteServers {
		state := "offline"
		if r.Status == protocol.V1StatusOnline {
			state = "online"
		}
		fmt.Printf("  remote %s (%s) %d/%d %s\n", r.ID, r.Name, r.Online, r.Max, state)
	}
	return nil
}

func (c *client) queryV2(fam protocol.Family, mode string, authToken []byte, offset uint32, wantAddr bool) error {
	raw, err := c.roundTrip(protocol.EncodeV2Request(&protocol.V2Request{
		Family: fam,
		Type:   protocol.QueryChallenge,
	}))
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}
	challengeToken, err := protocol.ParseChallengeResponse(raw)
	if err != nil {
		return fmt.Errorf("challenge: %w", err)
	}

	req := &protocol.V2Request{
		Family:         fam,
		Type:           protocol.QueryBasic,
		RequestID:      uint32(time.Now().UnixNano()),
		ChallengeToken: challengeToken,
		AuthToken:      authToken,
		Offset:         offset,
	}
	if mode == "players" {
		req.Type = protocol.QueryPlayers
	}
	if wantAddr {
		req.Flags |= protocol.FlagHasAddress
	}

	raw, err = c.roundTrip(protocol.EncodeV2Request(req))
	if err != nil {
		return err
	}
	resp, err := protocol.ParseV2Response(raw)
	if err != nil {
		return err
	}
	if resp.RequestID != req.RequestID {
		return fmt.Errorf("request id mismatch: sent %d got %d", req.RequestID, resp.RequestID)
	}
	if resp.Flags&protocol.FlagAuthRequired != 0 {
		fmt.Println("note: endpoint requires an auth token, showing public view")
	}

	payload := resp.Payload
	for len(payload) > 0 {
		typ, value, rest, err := protocol.NextTLV(payload)
		if err != nil {
			return err
		}
		payload = rest
		switch typ {
		case protocol.TLVServerInfo:
			info, err := protocol.ParseServerInfo(value, resp.Flags&protocol.FlagHasAddress != 0)
			if err != nil {
				return err
			}
			fmt.Printf("server:  %s\n", info.Name)
			fmt.Printf("motd:    %s\n", info.MOTD)
			fmt.Printf("players: %d/%d\n", info.Online, info.Max)
			fmt.Printf("version: %s (protocol %d %s)\n", info.Version, info.ProtocolVersion, info.ProtocolHash)
			if resp.Flags&protocol.FlagIsNetwork != 0 {
				fmt.Println("network: yes")
			}
			if info.Host != "" {
				fmt.Printf("address: %s:%d\n", info.Host, info.Port)
			}
		case protocol.TLVPlayerList:
			list, err := protocol.ParsePlayerList(value)
			if err != nil {
				return err
			}
			fmt.Printf("players %d-%d of %d\n", list.Offset, list.Offset+list.Count, list.Total)
			for _, p := range list.Players {
				fmt.Printf("  %s (%s)\n", p.Username, p.UUID)
			}
			if resp.Flags&protocol.FlagHasMorePlayers != 0 {
				fmt.Printf("more pages available, retry with -offset %d\n", list.Offset+list.Count)
			}
		}
	}
	return nil
}
