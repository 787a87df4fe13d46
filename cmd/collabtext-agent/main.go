// Command collabtext-agent is a peer-to-peer relay node: it serves local
// websocket clients, advertises and discovers other agents over mDNS,
// dials every peer it finds, and relays one document's transactions
// between all of them while caching the document's saved state on disk.
package main

import (
	"context"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
	"github.com/grandcat/zeroconf"

	"github.com/collabtext/collabrt/doc"
	"github.com/collabtext/collabrt/events"
	"github.com/collabtext/collabrt/providers/boltprovider"
	"github.com/collabtext/collabrt/providers/discovery"
	"github.com/collabtext/collabrt/providers/wsprovider"
	"github.com/collabtext/collabrt/types"
)

const serviceName = "_collabtext._tcp"

// hub fans a local document's transactions out to every connected peer —
// local UI clients and other agents alike — and applies whatever those
// peers send back.
type hub struct {
	mu    sync.Mutex
	peers map[*wsprovider.Peer]bool

	doc   *doc.Document
	cache *boltprovider.Cache
	docID string
}

func newHub(d *doc.Document, cache *boltprovider.Cache, docID string) *hub {
	h := &hub{peers: make(map[*wsprovider.Peer]bool), doc: d, cache: cache, docID: docID}
	d.OnSend(func(ev events.Send) {
		h.broadcast(nil, ev.Bytes)
		h.persist()
	})
	return h
}

func (h *hub) persist() {
	if h.cache == nil {
		return
	}
	saved, err := h.doc.Save()
	if err != nil {
		glog.Errorf("saving document for cache: %v", err)
		return
	}
	if err := h.cache.Put(h.docID, saved); err != nil {
		glog.Errorf("caching document state: %v", err)
	}
}

func (h *hub) add(p *wsprovider.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.peers[p] = true
}

func (h *hub) remove(p *wsprovider.Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, p)
}

func (h *hub) broadcast(except *wsprovider.Peer, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		if p == except {
			continue
		}
		if !p.Enqueue(msg) {
			p.Close()
			delete(h.peers, p)
		}
	}
}

// serve drives one connected peer for as long as the connection lasts:
// relays everything it sends to every other peer and applies it to the
// local document, and writes out everything queued for it.
func (h *hub) serve(ctx context.Context, p *wsprovider.Peer) {
	h.add(p)
	glog.Infof("peer connected, %d active", len(h.peers))

	writeCtx, cancel := context.WithCancel(ctx)
	go func() {
		if err := p.WriteLoop(writeCtx); err != nil {
			glog.Warningf("write loop ended: %v", err)
		}
	}()

	err := p.ReadLoop(func(msg []byte) error {
		h.broadcast(p, msg)
		if err := h.doc.Receive(msg, p); err != nil {
			glog.Warningf("applying peer transaction: %v", err)
		}
		h.persist()
		return nil
	})
	if err != nil {
		glog.Infof("peer disconnected: %v", err)
	}

	cancel()
	h.remove(p)
	p.Close()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	flag.Parse()
	defer glog.Flush()

	docID := envOr("COLLABTEXT_DOC_ID", "default")
	listenAddr := envOr("LISTEN_ADDR", ":9090")
	cachePath := envOr("CACHE_PATH", "collabtext-agent.db")

	_, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		glog.Fatalf("parsing listen address %q: %v", listenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		glog.Fatalf("parsing listen port %q: %v", portStr, err)
	}

	cache, err := boltprovider.Open(cachePath)
	if err != nil {
		glog.Fatalf("opening local cache: %v", err)
	}
	defer cache.Close()

	d := doc.New()
	body := types.NewRegister("body", d.Root(), d)
	if err := d.RegisterChild("body", body); err != nil {
		glog.Fatalf("registering document schema: %v", err)
	}
	if saved, ok, err := cache.Get(docID); err != nil {
		glog.Errorf("reading cached state: %v", err)
	} else if ok {
		if err := d.Load(saved, nil); err != nil {
			glog.Errorf("applying cached state: %v", err)
		} else {
			glog.Infof("restored document %s from local cache", docID)
		}
	}

	h := newHub(d, cache, docID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownAnnounce, err := discovery.Announce(serviceName, port, "")
	if err != nil {
		glog.Fatalf("announcing on the network: %v", err)
	}
	defer shutdownAnnounce()
	glog.Infof("advertising %s on port %d", serviceName, port)

	go func() {
		err := discovery.Browse(ctx, serviceName, func(entry *zeroconf.ServiceEntry) {
			if len(entry.AddrIPv4) == 0 {
				return
			}
			url := "ws://" + net.JoinHostPort(entry.AddrIPv4[0].String(), strconv.Itoa(entry.Port)) + "/peer"
			glog.Infof("discovered peer at %s, dialing", url)
			go func() {
				peer, err := wsprovider.DialWithBackoff(ctx, url)
				if err != nil {
					glog.Warningf("dialing %s: %v", url, err)
					return
				}
				h.serve(ctx, peer)
			}()
		})
		if err != nil && ctx.Err() == nil {
			glog.Errorf("browsing for peers: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsprovider.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Errorf("upgrade failed: %v", err)
			return
		}
		go h.serve(ctx, wsprovider.NewPeer(conn))
	})
	mux.HandleFunc("/peer", func(w http.ResponseWriter, r *http.Request) {
		conn, err := wsprovider.Upgrader.Upgrade(w, r, nil)
		if err != nil {
			glog.Errorf("peer upgrade failed: %v", err)
			return
		}
		go h.serve(ctx, wsprovider.NewPeer(conn))
	})

	server := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		glog.Infof("collabtext-agent listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			glog.Fatalf("agent server exited: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	glog.Infof("shutting down")
	cancel()
	_ = server.Close()
}
