package ldapserver

import (
	"context"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/rs/zerolog"

	"github.com/aredn/aredn-ldap-bridge/internal/audit"
	"github.com/aredn/aredn-ldap-bridge/internal/cache"
	"github.com/aredn/aredn-ldap-bridge/internal/config"
	"github.com/aredn/aredn-ldap-bridge/internal/filter"
	"github.com/aredn/aredn-ldap-bridge/internal/ldapwire"
	"github.com/aredn/aredn-ldap-bridge/internal/stats"
)

// connHandler drives one connection's state machine:
//
//	START -> (bindRequest?) -> READY -> {searchRequest | write-class | extendedRequest | abandonRequest} -> READY
//	READY -> unbindRequest | EOF | oversize -> CLOSED
//
// A bind is never required to search (allow_anonymous_bind is honored
// unconditionally; see SPEC_FULL.md §9), and simple bind with any
// credentials succeeds.
type connHandler struct {
	conn   net.Conn
	connID string

	cfg   *config.Config
	cache *cache.Cache
	audit *audit.Logger
	stats *stats.Stats
}

func (h *connHandler) serve(ctx context.Context) {
	defer h.conn.Close()

	peer := h.conn.RemoteAddr().String()
	log := logger.With().Str("conn_id", h.connID).Str("peer", peer).Logger()
	log.Info().Msg("connection accepted")

	reader := ldapwire.NewReader(h.conn)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection closing for shutdown")
			return
		default:
		}

		msg, err := reader.ReadMessage()
		if err != nil {
			if ldapwire.IsOversize(err) {
				log.Warn().Err(err).Msg("oversize message, closing connection")
			} else {
				log.Warn().Err(err).Msg("decode error, closing connection")
			}
			return
		}

		if !h.dispatch(&log, msg, peer) {
			return
		}
	}
}

// dispatch handles one decoded message. It returns false when the
// connection should be closed (unbindRequest, a malformed bind or search
// request, or a write failure).
func (h *connHandler) dispatch(log *zerolog.Logger, msg *ldapwire.Message, peer string) bool {
	tag := int(msg.Op.Tag)

	switch tag {
	case ldap.ApplicationBindRequest:
		return h.handleBind(log, msg)
	case ldap.ApplicationUnbindRequest:
		log.Info().Int64("message_id", msg.ID).Msg("unbindRequest, closing connection")
		return false
	case ldap.ApplicationSearchRequest:
		return h.handleSearch(log, msg)
	case ldap.ApplicationAbandonRequest:
		log.Info().Int64("message_id", msg.ID).Msg("abandonRequest, ignoring")
		return true
	case ldap.ApplicationModifyRequest:
		return h.rejectWrite(log, msg, peer, "modify", ldapwire.EncodeModifyResponse)
	case ldap.ApplicationAddRequest:
		return h.rejectWrite(log, msg, peer, "add", ldapwire.EncodeAddResponse)
	case ldap.ApplicationDelRequest:
		return h.rejectWrite(log, msg, peer, "delete", ldapwire.EncodeDelResponse)
	case ldap.ApplicationModifyDNRequest:
		return h.rejectWrite(log, msg, peer, "modifyDN", ldapwire.EncodeModifyDNResponse)
	case ldap.ApplicationCompareRequest:
		return h.rejectWrite(log, msg, peer, "compare", ldapwire.EncodeCompareResponse)
	case ldap.ApplicationExtendedRequest:
		return h.handleExtended(log, msg)
	default:
		log.Warn().Int64("message_id", msg.ID).Int("tag", tag).Msg("unsupported protocolOp, ignoring")
		return true
	}
}

func (h *connHandler) handleBind(log *zerolog.Logger, msg *ldapwire.Message) bool {
	params, err := ldapwire.DecodeBindRequest(msg)
	if err != nil {
		log.Warn().Err(err).Msg("malformed bindRequest, closing connection")
		return false
	}

	h.stats.Binds.Add(1)
	log.Info().Int64("message_id", msg.ID).Str("name", ldap.EscapeFilter(params.Name)).Msg("bindRequest")

	resp := ldapwire.EncodeBindResponse(msg.ID, int64(ldap.LDAPResultSuccess))
	return h.write(log, resp)
}

func (h *connHandler) handleSearch(log *zerolog.Logger, msg *ldapwire.Message) bool {
	params, err := ldapwire.DecodeSearchRequest(msg)
	if err != nil {
		log.Warn().Err(err).Msg("malformed searchRequest, closing connection")
		return false
	}

	h.stats.Searches.Add(1)

	node := filter.Parse(params.FilterRaw)
	snap := h.cfg.Snap()

	deadline := time.Duration(snap.UpstreamTimeoutSeconds)*time.Second + time.Duration(snap.CacheTTLSeconds)*time.Second
	ctx, cancel := context.WithTimeout(context.Background(), deadline)
	defer cancel()

	entries := h.cache.GetEntries(ctx)

	maxResults := snap.MaxResults
	if maxResults < 1 {
		maxResults = 1
	}

	sent := 0
	for _, entry := range entries {
		if sent >= maxResults {
			break
		}
		if !filter.Match(node, entry.SearchBlob()) {
			continue
		}

		if !h.write(log, ldapwire.EncodeSearchResultEntry(msg.ID, entry)) {
			return false
		}
		sent++
	}

	h.stats.EntriesReturned.Add(int64(sent))
	log.Info().Int64("message_id", msg.ID).Int("base_dn_len", len(params.BaseDN)).Int64("scope", params.Scope).Int("returned", sent).Msg("searchRequest")

	return h.write(log, ldapwire.EncodeSearchResultDone(msg.ID, int64(ldap.LDAPResultSuccess)))
}

func (h *connHandler) handleExtended(log *zerolog.Logger, msg *ldapwire.Message) bool {
	log.Info().Int64("message_id", msg.ID).Msg("extendedRequest, replying unsupported")
	return h.write(log, ldapwire.EncodeExtendedResponse(msg.ID, int64(ldap.LDAPResultInsufficientAccessRights)))
}

// rejectWrite answers any write-class request with insufficientAccessRights
// and records it to the audit trail, per the bridge's fixed read-only
// contract.
func (h *connHandler) rejectWrite(log *zerolog.Logger, msg *ldapwire.Message, peer, op string, encode func(int64, int64) []byte) bool {
	dn := ldapwire.DecodeWriteDN(msg)
	log.Info().Int64("message_id", msg.ID).Str("op", op).Msg("write-class request rejected")

	h.stats.WriteRejections.Add(1)
	h.audit.Log(audit.Record{
		Timestamp:  time.Now(),
		Operation:  op,
		MessageID:  msg.ID,
		PeerAddr:   peer,
		DN:         dn,
		ResultCode: ldap.LDAPResultInsufficientAccessRights,
	})

	return h.write(log, encode(msg.ID, int64(ldap.LDAPResultInsufficientAccessRights)))
}

func (h *connHandler) write(log *zerolog.Logger, pdu []byte) bool {
	if _, err := h.conn.Write(pdu); err != nil {
		log.Warn().Err(err).Msg("write failed, closing connection")
		return false
	}
	return true
}
