package fakeserver_test

import (
	"bufio"
	"context"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/ldapws/client"
	"github.com/luma/ldapws/internal/fakeserver"
	"github.com/luma/ldapws/protocol"
	"github.com/luma/ldapws/session"
	"github.com/luma/ldapws/storage"
)

const (
	adminDN  = "cn=admin,dc=example,dc=com"
	adminPwd = "secret"
)

var tree = []*storage.Entry{
	{DN: "dc=example,dc=com", Attributes: map[string][]string{"objectClass": {"domain"}, "dc": {"example"}}},
	{DN: "ou=people,dc=example,dc=com", Attributes: map[string][]string{"objectClass": {"organizationalUnit"}, "ou": {"people"}}},
	{DN: "cn=alice,ou=people,dc=example,dc=com", Attributes: map[string][]string{
		"objectClass":  {"person"},
		"cn":           {"alice"},
		"sn":           {"Smith"},
		"userPassword": {"alicepw"},
	}},
	{DN: "cn=bob,ou=people,dc=example,dc=com", Attributes: map[string][]string{
		"objectClass": {"person"},
		"cn":          {"bob"},
		"sn":          {"Jones"},
	}},
	{DN: "ou=groups,dc=example,dc=com", Attributes: map[string][]string{"objectClass": {"organizationalUnit"}, "ou": {"groups"}}},
}

func startServer(options fakeserver.Options) *fakeserver.Server {
	store := storage.NewInmemoryStore()
	for _, entry := range tree {
		Expect(store.Add(context.Background(), entry)).To(Succeed())
	}

	options.Host = "127.0.0.1"
	options.Store = store
	options.Credentials = map[string]string{adminDN: adminPwd}
	options.Log = zap.NewNop()

	server := fakeserver.New(options)
	Expect(server.Start(context.Background())).To(Succeed())

	return server
}

func connect(server *fakeserver.Server, dn, password string) *session.Session {
	s, err := client.Connect(context.Background(), client.Config{
		Address:         server.Addr(),
		BindDN:          dn,
		Password:        password,
		VerifyMessageID: true,
	})
	Expect(err).To(Succeed())

	return s
}

func dns(result *session.SearchResult) []string {
	names := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		names = append(names, entry.DN)
	}
	return names
}

var _ = Describe("fakeserver", func() {
	var (
		ctx    context.Context
		server *fakeserver.Server
		s      *session.Session
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = startServer(fakeserver.Options{})
		s = connect(server, adminDN, adminPwd)
	})

	AfterEach(func() {
		s.Close()
		Expect(server.Close()).To(Succeed())
	})

	It("listens on the desired port", func() {
		conn, err := net.Dial("tcp", server.Addr())
		Expect(err).To(Succeed())
		conn.Close()
	})

	Describe("bind", func() {
		It("accepts anonymous binds", func() {
			resp, err := s.Bind(ctx, "", "")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))
		})

		It("accepts configured credentials whatever the DN case", func() {
			resp, err := s.Bind(ctx, "CN=Admin, DC=Example, DC=com", adminPwd)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))
		})

		It("accepts entries with a userPassword", func() {
			resp, err := s.Bind(ctx, "cn=alice,ou=people,dc=example,dc=com", "alicepw")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))
		})

		It("rejects wrong passwords", func() {
			resp, err := s.Bind(ctx, adminDN, "wrongpass")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultInvalidCredentials))
		})

		It("refuses unauthenticated binds", func() {
			resp, err := s.Bind(ctx, adminDN, "")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultUnwillingToPerform))
		})
	})

	Describe("search", func() {
		search := func(base string, scope session.Scope, filter string) *session.SearchResult {
			result, err := s.SearchDefaults(ctx, base, filter, scope)
			Expect(err).To(Succeed())
			return result
		}

		It("honours every scope", func() {
			Expect(dns(search("ou=people,dc=example,dc=com", session.ScopeBase, "(objectClass=*)"))).To(Equal([]string{
				"ou=people,dc=example,dc=com",
			}))

			Expect(dns(search("dc=example,dc=com", session.ScopeOneLevel, "(objectClass=*)"))).To(Equal([]string{
				"ou=people,dc=example,dc=com",
				"ou=groups,dc=example,dc=com",
			}))

			Expect(search("dc=example,dc=com", session.ScopeSubtree, "(objectClass=*)").Entries).To(HaveLen(5))
			Expect(search("dc=example,dc=com", session.ScopeChildren, "(objectClass=*)").Entries).To(HaveLen(4))
		})

		It("filters entries", func() {
			result := search("dc=example,dc=com", session.ScopeSubtree, "(&(objectClass=person)(sn=sm*))")
			Expect(dns(result)).To(Equal([]string{"cn=alice,ou=people,dc=example,dc=com"}))
			Expect(result.Done.Code).To(Equal(protocol.ResultSuccess))
		})

		It("never returns passwords", func() {
			result := search("cn=alice,ou=people,dc=example,dc=com", session.ScopeBase, "(objectClass=*)")
			Expect(result.Entries).To(HaveLen(1))
			Expect(result.Entries[0].GetAttributeValues("sn")).To(Equal([]string{"Smith"}))
			Expect(result.Entries[0].GetAttributeValues("userPassword")).To(BeNil())
		})

		It("reports a missing base", func() {
			result := search("ou=nowhere,dc=example,dc=com", session.ScopeSubtree, "(objectClass=*)")
			Expect(result.Entries).To(BeEmpty())
			Expect(result.Done.Code).To(Equal(protocol.ResultNoSuchObject))
		})

		It("enforces the size limit", func() {
			limit := 2
			result, err := s.Search(ctx, session.SearchParams{
				BaseDN:    "dc=example,dc=com",
				Filter:    "(objectClass=*)",
				Scope:     session.ScopeSubtree,
				SizeLimit: &limit,
			})
			Expect(err).To(Succeed())
			Expect(result.Entries).To(HaveLen(2))
			Expect(result.Done.Code).To(Equal(protocol.ResultSizeLimitExceeded))
		})
	})

	Describe("add / delete / modify DN", func() {
		It("adds entries once", func() {
			attrs := protocol.AttributesFromMap(map[string][]string{"objectClass": {"person"}, "cn": {"carol"}})

			resp, err := s.Add(ctx, "cn=carol,ou=people,dc=example,dc=com", attrs)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))

			resp, err = s.Add(ctx, "CN=Carol,ou=people,dc=example,dc=com", attrs)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultEntryAlreadyExists))

			_, err = server.Store().Get(ctx, "cn=carol,ou=people,dc=example,dc=com")
			Expect(err).To(Succeed())
		})

		It("deletes leaves only", func() {
			resp, err := s.Delete(ctx, "ou=people,dc=example,dc=com")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultNotAllowedOnNonLeaf))

			resp, err = s.Delete(ctx, "cn=bob,ou=people,dc=example,dc=com")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))

			resp, err = s.Delete(ctx, "cn=bob,ou=people,dc=example,dc=com")
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultNoSuchObject))
		})

		It("renames entries", func() {
			resp, err := s.RenameEntry(ctx, "cn=bob,ou=people,dc=example,dc=com", "cn=robert", true, nil)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))

			entry, err := server.Store().Get(ctx, "cn=robert,ou=people,dc=example,dc=com")
			Expect(err).To(Succeed())
			Expect(entry.Attributes).To(HaveKeyWithValue("cn", []string{"robert"}))

			_, err = server.Store().Get(ctx, "cn=bob,ou=people,dc=example,dc=com")
			Expect(err).To(MatchError(storage.ErrNoSuchEntry))
		})

		It("moves entries under a new superior", func() {
			superior := "ou=groups,dc=example,dc=com"
			resp, err := s.RenameEntry(ctx, "cn=bob,ou=people,dc=example,dc=com", "cn=bob", false, &superior)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultSuccess))

			_, err = server.Store().Get(ctx, "cn=bob,ou=groups,dc=example,dc=com")
			Expect(err).To(Succeed())
		})

		It("refuses to rename onto an existing entry", func() {
			resp, err := s.RenameEntry(ctx, "cn=bob,ou=people,dc=example,dc=com", "cn=alice", false, nil)
			Expect(err).To(Succeed())
			Expect(resp.Code).To(Equal(protocol.ResultEntryAlreadyExists))
		})
	})

	It("closes the connection on unbind", func() {
		conn, err := net.Dial("tcp", server.Addr())
		Expect(err).To(Succeed())
		defer conn.Close()

		Expect(protocol.WriteMessage(conn, &protocol.Message{ID: 1, Op: &protocol.BindRequest{Version: 3}})).To(Succeed())
		Expect(protocol.WriteMessage(conn, &protocol.Message{ID: 2, Op: &protocol.UnbindRequest{}})).To(Succeed())

		r := bufio.NewReader(conn)

		msg, err := protocol.ReadMessage(r)
		Expect(err).To(Succeed())
		Expect(msg.ID).To(Equal(int64(1)))

		Expect(conn.SetReadDeadline(time.Now().Add(2 * time.Second))).To(Succeed())
		_, err = protocol.ReadMessage(r)
		Expect(err).To(SatisfyAny(MatchError(io.EOF), MatchError(io.ErrUnexpectedEOF)))
	})

	Describe("misbehaving", func() {
		It("can drop the connection mid-search", func() {
			broken := startServer(fakeserver.Options{TruncateSearches: true})
			defer broken.Close()

			bs := connect(broken, "", "")
			defer bs.Close()

			_, err := bs.SearchDefaults(ctx, "dc=example,dc=com", "(objectClass=*)", session.ScopeSubtree)
			Expect(err).To(MatchError(session.ErrTruncatedSearch))
		})

		It("can answer with the wrong message ID", func() {
			broken := startServer(fakeserver.Options{ShiftMessageIDs: 1})
			defer broken.Close()

			bs := connect(broken, "", "")
			defer bs.Close()

			_, err := bs.Bind(ctx, "", "")
			Expect(err).To(MatchError(session.ErrUnexpectedMessage))
		})

		It("returns referrals after the entries", func() {
			referring := startServer(fakeserver.Options{Referrals: []string{"ldap://replica.example.com/dc=example,dc=com"}})
			defer referring.Close()

			rs := connect(referring, "", "")
			defer rs.Close()

			result, err := rs.SearchDefaults(ctx, "dc=example,dc=com", "(objectClass=person)", session.ScopeSubtree)
			Expect(err).To(Succeed())
			Expect(result.Entries).To(HaveLen(2))
			Expect(result.Referrals).To(HaveLen(1))
			Expect(result.Referrals[0].URIs).To(ConsistOf("ldap://replica.example.com/dc=example,dc=com"))
			Expect(result.Messages[2].Op.Kind()).To(Equal(protocol.KindSearchResultReference))
		})
	})

	It("shuts down with clients connected", func() {
		other := connect(server, "", "")
		defer other.Close()

		done := make(chan error)
		go func() {
			done <- server.Close()
		}()

		Eventually(done, 2*time.Second).Should(Receive(BeNil()))

		_, err := other.Bind(ctx, "", "")
		Expect(err).To(HaveOccurred())
	})
})
