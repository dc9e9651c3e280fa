package shopify

// cartFragment selects every field the normalized cart carries.
const cartFragment = `
fragment CartFields on Cart {
  id
  checkoutUrl
  totalQuantity
  cost {
    totalAmount { amount currencyCode }
  }
  lines(first: 100) {
    edges {
      node {
        id
        quantity
        cost {
          amountPerQuantity { amount currencyCode }
          subtotalAmount { amount currencyCode }
          totalAmount { amount currencyCode }
        }
        merchandise {
          ... on ProductVariant {
            id
            title
            selectedOptions { name value }
            image { url altText }
            product { title handle }
          }
        }
      }
    }
  }
}
`

const userErrorFields = `userErrors { field code message }`

const queryCart = `
query cart($cartId: ID!) {
  cart(id: $cartId) { ...CartFields }
}
` + cartFragment

const mutationCartCreate = `
mutation cartCreate($input: CartInput!) {
  cartCreate(input: $input) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const mutationLinesAdd = `
mutation cartLinesAdd($cartId: ID!, $lines: [CartLineInput!]!) {
  cartLinesAdd(cartId: $cartId, lines: $lines) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const mutationLinesUpdate = `
mutation cartLinesUpdate($cartId: ID!, $lines: [CartLineUpdateInput!]!) {
  cartLinesUpdate(cartId: $cartId, lines: $lines) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment

const mutationLinesRemove = `
mutation cartLinesRemove($cartId: ID!, $lineIds: [ID!]!) {
  cartLinesRemove(cartId: $cartId, lineIds: $lineIds) {
    cart { ...CartFields }
    ` + userErrorFields + `
  }
}
` + cartFragment
