package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Buffer", func() {
	var buf *Buffer

	BeforeEach(func() {
		buf = NewBuffer("soil_moist", 3)
	})

	It("should start with zeros", func() {
		Expect(buf.Len()).To(Equal(3))
		Expect(buf.View().Sum()).To(Equal(0.0))
	})

	It("should share memory with its views", func() {
		v := buf.View()

		buf.Set(1, 2.5)
		buf.Add(1, 0.5)

		Expect(v.At(1)).To(Equal(3.0))
		Expect(v.SameAs(buf.View())).To(BeTrue())
	})

	It("should not share memory with copied values", func() {
		values := buf.View().Values()
		buf.Fill(1)

		Expect(values).To(Equal([]float64{0, 0, 0}))
		Expect(buf.View().Mean()).To(Equal(1.0))
	})

	It("should panic when copying a slice of another length", func() {
		Expect(func() { buf.CopyFrom([]float64{1}) }).To(Panic())
	})

	It("should copy from a slice of the same length", func() {
		buf.CopyFrom([]float64{1, 2, 3})

		dst := make([]float64, 3)
		n := buf.View().CopyTo(dst)

		Expect(n).To(Equal(3))
		Expect(dst).To(Equal([]float64{1, 2, 3}))
	})

	It("should not consider separate arrays the same", func() {
		other := NewBuffer("soil_moist", 3)

		Expect(buf.View().SameAs(other.View())).To(BeFalse())
		Expect(ViewOf(nil).SameAs(View{})).To(BeTrue())
	})
})
