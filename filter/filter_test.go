package filter_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/ldapws/filter"
)

var alice = map[string][]string{
	"objectClass": {"top", "person", "inetOrgPerson"},
	"cn":          {"Alice Smith"},
	"uid":         {"alice"},
	"uidNumber":   {"1001"},
	"mail":        {"alice@example.com"},
}

func match(text string) bool {
	packet, err := filter.Parser{}.Parse(text)
	Expect(err).To(Succeed())

	ok, err := filter.Match(packet, alice)
	Expect(err).To(Succeed())

	return ok
}

var _ = Describe("filter", func() {
	Describe("Parser", func() {
		It("compiles valid filters", func() {
			packet, err := filter.Parser{}.Parse("(&(objectClass=person)(uid=a*))")
			Expect(err).To(Succeed())

			text, err := filter.String(packet)
			Expect(err).To(Succeed())
			Expect(text).To(Equal("(&(objectClass=person)(uid=a*))"))
		})

		It("rejects malformed filters", func() {
			for _, text := range []string{"((", "(uid=alice", "uid=alice)", ""} {
				_, err := filter.Parser{}.Parse(text)
				Expect(err).To(MatchError(filter.ErrSyntax), text)
			}
		})
	})

	DescribeTable("Match()",
		func(text string, expected bool) {
			Expect(match(text)).To(Equal(expected))
		},
		Entry("presence", "(mail=*)", true),
		Entry("absent attribute", "(telephoneNumber=*)", false),
		Entry("equality ignores case", "(UID=ALICE)", true),
		Entry("equality on multi-valued attribute", "(objectClass=person)", true),
		Entry("inequality", "(uid=bob)", false),
		Entry("initial substring", "(cn=alice*)", true),
		Entry("final substring", "(cn=*smith)", true),
		Entry("middle substring", "(mail=*@*.com)", true),
		Entry("substrings in order", "(cn=a*smi*th)", true),
		Entry("substrings out of order", "(cn=*smith*alice*)", false),
		Entry("numeric greater or equal", "(uidNumber>=999)", true),
		Entry("numeric less or equal", "(uidNumber<=999)", false),
		Entry("approximate", "(cn~=alice smith)", true),
		Entry("and", "(&(objectClass=person)(uid=alice))", true),
		Entry("and with a miss", "(&(objectClass=person)(uid=bob))", false),
		Entry("or", "(|(uid=bob)(uid=alice))", true),
		Entry("not", "(!(uid=bob))", true),
	)

	It("matches everything with a nil filter", func() {
		Expect(filter.Match(nil, alice)).To(BeTrue())
	})

	It("does not support extensible matches", func() {
		packet, err := filter.Parser{}.Parse("(cn:caseExactMatch:=Alice Smith)")
		Expect(err).To(Succeed())

		_, err = filter.Match(packet, alice)
		Expect(err).To(MatchError(filter.ErrUnsupportedFilter))
	})
})
